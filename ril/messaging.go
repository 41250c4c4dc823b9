package ril

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

// broadcastLength is the size of a GSM cell broadcast page.
const broadcastLength = 88

// SMSResponse is the result of a submitted SMS.
type SMSResponse struct {
	MessageRef int `json:"message_ref"`
	// ErrorCode is the TP failure cause, -1 when not applicable.
	ErrorCode int `json:"error_code"`
}

func (r *RIL) requestSendSMS(c *call) (any, error) {
	args, ok := argsOf[SMSPDU](c.req)
	if !ok || args.PDU == "" {
		return nil, StatusGenericFailure
	}
	ref, err := c.ch.SendSMS(c.ctx, args.SMSC, args.PDU)
	if err != nil {
		return nil, smsSendError(err)
	}
	return SMSResponse{MessageRef: ref, ErrorCode: -1}, nil
}

// requestSendSMSExpectMore keeps the relay link open for the next
// message before sending.
func (r *RIL) requestSendSMSExpectMore(c *call) (any, error) {
	r.sendEach(c.ctx, c.ch, "AT+CMMS=1")
	return r.requestSendSMS(c)
}

// requestSendText encodes plain text as one or more SMS-SUBMIT PDUs and
// sends them, keeping the relay link open between segments.
func (r *RIL) requestSendText(c *call) (any, error) {
	msg, ok := argsOf[TextMessage](c.req)
	if !ok {
		return nil, StatusGenericFailure
	}
	pdus, err := modem.EncodeSubmit(msg.To, msg.Text)
	if err != nil {
		return nil, err
	}

	refs := make([]SMSResponse, 0, len(pdus))
	for i, pdu := range pdus {
		if i < len(pdus)-1 {
			r.sendEach(c.ctx, c.ch, "AT+CMMS=1")
		}
		ref, err := c.ch.SendSMS(c.ctx, modem.DefaultSMSC, pdu)
		if err != nil {
			return refs, smsSendError(fmt.Errorf("segment %d of %d: %w", i+1, len(pdus), err))
		}
		refs = append(refs, SMSResponse{MessageRef: ref, ErrorCode: -1})
	}
	return refs, nil
}

// smsSendError marks the CMS causes worth retrying.
func smsSendError(err error) error {
	var code at.Code
	if errors.As(err, &code) {
		switch code.CMS() {
		case at.CMSNoNetworkService, at.CMSNetworkTimeout:
			return fmt.Errorf("%w: %w", StatusSMSSendFailRetry, err)
		}
	}
	return err
}

// requestSMSAcknowledge completes, then releases the next held SMS event.
func (r *RIL) requestSMSAcknowledge(c *call) (any, error) {
	c.after = r.session.acknowledge
	return nil, nil
}

func (r *RIL) requestWriteSMSToSIM(c *call) (any, error) {
	args, ok := argsOf[SIMWrite](c.req)
	if !ok || args.PDU == "" {
		return nil, StatusGenericFailure
	}
	return c.ch.StoreSMS(c.ctx, args.Status, args.SMSC, args.PDU)
}

func (r *RIL) requestDeleteSMSOnSIM(c *call) (any, error) {
	index, ok := intArg(c.req, 0)
	if !ok {
		return nil, StatusGenericFailure
	}
	return nil, c.ch.Command(c.ctx, fmt.Sprintf("AT+CMGD=%d", index))
}

func (r *RIL) requestGetSMSCAddress(c *call) (any, error) {
	resp, err := c.ch.SingleLine(c.ctx, "AT+CSCA?", "+CSCA:")
	if err != nil {
		return nil, err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return nil, err
	}
	return tok.NextString()
}

func (r *RIL) requestSetSMSCAddress(c *call) (any, error) {
	smsc, ok := stringArg(c.req, 0)
	if !ok || !isPhoneNumber(smsc) {
		return nil, StatusGenericFailure
	}
	return nil, c.ch.Command(c.ctx, fmt.Sprintf(`AT+CSCA="%s"`, smsc))
}

// requestReportSMSMemoryStatus accepts 0 (full) and 1 (available again).
// Neither needs telling the modem since messages are not acknowledged
// with +CNMA.
func (r *RIL) requestReportSMSMemoryStatus(c *call) (any, error) {
	avail, ok := intArg(c.req, 0)
	if !ok {
		return nil, StatusGenericFailure
	}
	switch avail {
	case 0:
		r.logger.Info("SMS storage full")
	case 1:
		r.logger.Info("SMS storage available")
	default:
		return nil, StatusGenericFailure
	}
	return nil, nil
}

// checkMessageStorageReady selects SIM message storage, retrying on the
// priority lane until the SIM answers +CPMS.
func (r *RIL) checkMessageStorageReady(ctx context.Context, ch *modem.Channel) {
	if _, err := ch.SingleLine(ctx, "AT+CPMS?", "+CPMS: "); err == nil {
		if err := r.setPreferredMessageStorage(ctx, ch); err == nil {
			r.logger.Info("Message storage is ready")
			return
		}
	}

	r.logger.Warn("Message storage is not ready, retrying", "retry_in", r.timing.storageRetry)
	r.sched.Enqueue(LanePrio, r.checkMessageStorageReady, r.timing.storageRetry)
}

// setPreferredMessageStorage selects SIM storage for reading and writing
// and reports a full SIM, whose +CIEV may have been sent before the
// channel was open.
func (r *RIL) setPreferredMessageStorage(ctx context.Context, ch *modem.Channel) error {
	resp, err := ch.SingleLine(ctx, `AT+CPMS="SM","SM"`, "+CPMS: ")
	if err != nil {
		return err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return err
	}
	used, err := tok.NextInt()
	if err != nil {
		return err
	}
	total, err := tok.NextInt()
	if err != nil {
		return err
	}
	if used >= total {
		r.host.OnUnsolicited(UnsolSIMSMSStorageFull, nil)
	}
	return nil
}

// isSIMSMSStorageFull reports a full SIM storage to the host.
func (r *RIL) isSIMSMSStorageFull(ctx context.Context, ch *modem.Channel) {
	resp, err := ch.SingleLine(ctx, "AT+CPMS?", "+CPMS: ")
	if err != nil {
		r.logger.Warn("Failed to read message storage", "error", err)
		return
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return
	}
	if _, err := tok.NextString(); err != nil {
		return
	}
	used, err := tok.NextInt()
	if err != nil {
		return
	}
	total, err := tok.NextInt()
	if err != nil {
		return
	}
	if used >= total {
		r.host.OnUnsolicited(UnsolSIMSMSStorageFull, nil)
	}
}

// onNewSMS handles the PDU of a +CMT notification.
func (r *RIL) onNewSMS(pdu string) {
	payload := NewSMS{PDU: pdu}
	if msg, err := modem.DecodeDeliver(pdu); err == nil {
		payload.Message = msg
	} else {
		r.logger.Debug("Delivered PDU is not a plain SMS-DELIVER", "error", err)
	}
	r.session.deliverSMS(UnsolNewSMS, payload)
}

// onNewStatusReport handles a +CDS PDU. The modem leaves out the SMSC
// field, so an empty one is prepended.
func (r *RIL) onNewStatusReport(pdu string) {
	r.session.deliverSMS(UnsolNewSMSStatusReport, modem.DefaultSMSC+pdu)
}

// onNewBroadcastSMS handles a +CBM PDU, which must be one full page.
func (r *RIL) onNewBroadcastSMS(pdu string) {
	if len(pdu) != 2*broadcastLength {
		r.logger.Warn("Discarding broadcast message with bad length", "length", len(pdu))
		return
	}
	page, err := hex.DecodeString(pdu)
	if err != nil {
		r.logger.Warn("Discarding malformed broadcast message", "error", err)
		return
	}
	r.session.deliverSMS(UnsolNewBroadcastSMS, page)
}

// onNewSMSOnSIM handles +CMTI: "SM",<index>.
func (r *RIL) onNewSMSOnSIM(line string) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return
	}
	mem, err := tok.NextString()
	if err != nil || !strings.HasPrefix(mem, "SM") {
		r.logger.Warn("Failed to parse +CMTI", "line", line)
		return
	}
	index, err := tok.NextInt()
	if err != nil {
		r.logger.Warn("Failed to parse +CMTI", "line", line)
		return
	}
	r.host.OnUnsolicited(UnsolNewSMSOnSIM, index)
}
