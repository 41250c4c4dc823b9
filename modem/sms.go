package modem

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warthog618/sms"
	"github.com/warthog618/sms/encoding/tpdu"

	"i4.energy/across/mbmril/at"
)

// DefaultSMSC is the empty SMSC address field, which makes the modem use
// the service centre stored on the SIM.
const DefaultSMSC = "00"

// ErrShortPDU is returned when a PDU is too short to hold its SMSC field.
var ErrShortPDU = errors.New("pdu shorter than its smsc field")

// SMS is a decoded SMS-DELIVER.
type SMS struct {
	From string    `json:"from"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// EncodeSubmit encodes text as SMS-SUBMIT TPDUs addressed to number and
// returns them hex encoded, without an SMSC field. Long texts are split
// into concatenated segments.
func EncodeSubmit(number, text string) ([]string, error) {
	if number == "" {
		return nil, errors.New("recipient number is required")
	}
	tpdus, err := sms.Encode([]byte(text), sms.AsSubmit, sms.To(number))
	if err != nil {
		return nil, fmt.Errorf("encode sms: %w", err)
	}

	pdus := make([]string, 0, len(tpdus))
	for i, t := range tpdus {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal segment %d: %w", i+1, err)
		}
		pdus = append(pdus, strings.ToUpper(hex.EncodeToString(b)))
	}
	return pdus, nil
}

// DecodeDeliver decodes a hex PDU as delivered with +CMT, whose leading
// SMSC field is skipped.
func DecodeDeliver(pdu string) (*SMS, error) {
	b, err := hex.DecodeString(pdu)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) == 0 || len(b) < 1+int(b[0]) {
		return nil, ErrShortPDU
	}
	b = b[1+int(b[0]):]

	t, err := sms.Unmarshal(b, sms.AsMT)
	if err != nil {
		return nil, fmt.Errorf("unmarshal tpdu: %w", err)
	}
	text, err := sms.Decode([]*tpdu.TPDU{t})
	if err != nil {
		return nil, fmt.Errorf("decode user data: %w", err)
	}
	return &SMS{
		From: t.OA.Number(),
		Time: t.SCTS.Time,
		Text: string(text),
	}, nil
}

// SendSMS submits one PDU with AT+CMGS and returns the message reference
// assigned by the network. smsc is the hex SMSC field; empty means
// DefaultSMSC.
//
// Failures are returned as at.Code values, so CMS causes can be inspected
// with Code.CMS.
func (c *Channel) SendSMS(ctx context.Context, smsc, pdu string) (int, error) {
	if smsc == "" {
		smsc = DefaultSMSC
	}
	cmd := fmt.Sprintf("AT+CMGS=%d", len(pdu)/2)
	resp, err := c.SMS(ctx, cmd, smsc+pdu, "+CMGS:")
	if err != nil {
		return 0, err
	}
	return firstInt(resp.Line())
}

// StoreSMS writes one PDU to SIM storage with AT+CMGW and returns its
// index. status is the <stat> value of the message.
func (c *Channel) StoreSMS(ctx context.Context, status int, smsc, pdu string) (int, error) {
	if smsc == "" {
		smsc = DefaultSMSC
	}
	cmd := fmt.Sprintf("AT+CMGW=%d,%d", len(pdu)/2, status)
	resp, err := c.SMS(ctx, cmd, smsc+pdu, "+CMGW:")
	if err != nil {
		return 0, err
	}
	return firstInt(resp.Line())
}

func firstInt(line string) (int, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", at.ErrInvalidResponse, line)
	}
	n, err := tok.NextInt()
	if err != nil {
		return 0, fmt.Errorf("%w: %q", at.ErrInvalidResponse, line)
	}
	return n, nil
}
