package ril

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

// dataCID is the PDP context every data call uses.
const dataCID = 1

// *E2NAP connection states.
const (
	e2napUnknown      = -1
	e2napDisconnected = 0
	e2napConnected    = 1
	e2napConnecting   = 2
)

// *ENAP? states.
const (
	enapNotConnected = 0
	enapConnected    = 1
	enapConnecting   = 2
)

// Data call activity, as reported in DataCall.Active.
const (
	DataCallInactive   = 0
	DataCallLinkDown   = 1
	DataCallLinkActive = 2
)

// Failure causes of the last data call setup. Except for the protocol
// error group they are the 3GPP TS 24.008 session management causes.
const (
	DataFailNone                        = 0x00
	DataFailOperatorBarred              = 0x08
	DataFailInsufficientResources       = 0x1A
	DataFailMissingUnknownAPN           = 0x1B
	DataFailUnknownPDPAddressType       = 0x1C
	DataFailUserAuthentication          = 0x1D
	DataFailActivationRejectGGSN        = 0x1E
	DataFailActivationRejectUnspecified = 0x1F
	DataFailServiceOptionNotSupported   = 0x20
	DataFailServiceOptionNotSubscribed  = 0x21
	DataFailServiceOptionOutOfOrder     = 0x22
	DataFailNSAPIInUse                  = 0x23
	DataFailProtocolErrors              = 0x6F
	DataFailUnspecified                 = 0xFFFF
)

// *E2NAP causes outside the mapped range.
const (
	e2napCauseMaximum                     = 255
	gprsSemanticallyIncorrectMessage      = 95
	gprsMessageNotCompatibleProtocolState = 101
	gprsProtocolErrorUnspecified          = 111
)

// Authentication offered to the network, as in DataCallSetup.Auth.
const (
	AuthNone = iota
	AuthPAP
	AuthCHAP
	AuthPAPOrCHAP
)

// DataCallSetup is the argument of setup_data_call.
type DataCallSetup struct {
	APN      string `json:"apn"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Auth     int    `json:"auth"`
}

// DataCall describes the packet data context. A failed setup completes
// successfully with only Status set to a DataFail cause.
type DataCall struct {
	Status    int      `json:"status"`
	CID       int      `json:"cid"`
	Active    int      `json:"active"`
	Type      string   `json:"type,omitempty"`
	APN       string   `json:"apn,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Gateways  []string `json:"gateways,omitempty"`
	DNSes     []string `json:"dnses,omitempty"`
}

// requestSetupDataCall defines the context, authenticates and starts the
// connection. It completes once *E2NAP reports the outcome; the wait runs
// as events so the lane keeps serving requests.
func (r *RIL) requestSetupDataCall(c *call) (any, error) {
	setup, ok := argsOf[DataCallSetup](c.req)
	if !ok || setup.APN == "" || !quotable(setup.APN) || !quotable(setup.User) || !quotable(setup.Password) {
		return nil, StatusGenericFailure
	}

	r.session.setDataConnection(e2napUnknown, e2napUnknown)
	r.session.setLastDataCallFailCause(DataFailUnspecified)
	r.logger.Info("Requesting data connection", "apn", setup.APN)

	if err := c.ch.Command(c.ctx, fmt.Sprintf(`AT+CGDCONT=%d,"IP","%s"`, dataCID, setup.APN)); err != nil {
		return nil, err
	}
	if err := r.networkAuth(c.ctx, c.ch, setup); err != nil {
		return nil, err
	}
	if err := c.ch.Command(c.ctx, fmt.Sprintf("AT*ENAP=1,%d", dataCID)); err != nil {
		r.logger.Warn("Failed to start data connection", "error", err)
		return r.abortDataCall(c.ctx, c.ch)
	}

	r.sched.Enqueue(LaneNormal, r.pollDataCallSetup(c.req, 1), r.timing.dataCallPoll)
	return nil, errDeferred
}

// pollDataCallSetup completes req once the connection is up or has
// failed, giving up after the configured number of attempts.
func (r *RIL) pollDataCallSetup(req Request, attempt int) EventFunc {
	return func(ctx context.Context, ch *modem.Channel) {
		var (
			payload any
			err     error
		)
		switch state, _ := r.session.dataConnection(); {
		case state == e2napConnected:
			payload, err = r.connectedDataCall(ctx, ch)
		case state == e2napDisconnected || attempt >= r.timing.dataCallPollTries:
			payload, err = r.abortDataCall(ctx, ch)
		default:
			r.sched.Enqueue(LaneNormal, r.pollDataCallSetup(req, attempt+1), r.timing.dataCallPoll)
			return
		}
		r.complete(req, statusOf(err), payload)
	}
}

// connectedDataCall reads the interface configuration of a connection
// that has come up.
func (r *RIL) connectedDataCall(ctx context.Context, ch *modem.Channel) (any, error) {
	resp, err := ch.SingleLine(ctx, "AT*E2IPCFG?", "*E2IPCFG:")
	if err == nil {
		var dc DataCall
		dc.Addresses, dc.Gateways, dc.DNSes, err = parseIPConfig(resp.Line())
		if err == nil {
			// The connection may have dropped while the reply was read.
			if state, _ := r.session.dataConnection(); state != e2napDisconnected {
				dc.CID = dataCID
				dc.Active = DataCallLinkActive
				dc.Type = "IP"
				r.logger.Info("Data connection up", "addresses", dc.Addresses, "gateways", dc.Gateways)
				return dc, nil
			}
		}
	}
	if err != nil {
		r.logger.Warn("Failed to read interface configuration", "error", err)
	}
	return r.abortDataCall(ctx, ch)
}

// abortDataCall stops a failed setup. A known network cause completes the
// request successfully with the cause as the call's status.
func (r *RIL) abortDataCall(ctx context.Context, ch *modem.Channel) (any, error) {
	cause := r.session.dataFailCause()
	r.session.updateLastDataCallFailCause()

	if err := ch.Command(ctx, "AT*ENAP=0"); err != nil {
		r.logger.Debug("Failed to stop data connection", "error", err)
	}
	if cause > 0 {
		return DataCall{Status: cause, CID: dataCID}, nil
	}
	return nil, StatusGenericFailure
}

// networkAuth sets the credentials with AT*EIAAUW. Backslashes are only
// accepted by the modem in UCS-2, so such credentials are sent with the
// character set switched for the one command.
func (r *RIL) networkAuth(ctx context.Context, ch *modem.Channel, setup DataCallSetup) error {
	var bits string
	switch setup.Auth {
	case AuthNone:
		bits = "00001"
	case AuthPAP:
		bits = "00011"
	case AuthCHAP:
		bits = "00101"
	case AuthPAPOrCHAP:
		bits = "00111"
	default:
		r.logger.Warn("Unknown authentication type, offering all", "auth", setup.Auth)
		bits = "00111"
	}

	if !strings.Contains(setup.User+setup.Password, `\`) {
		return ch.Command(ctx, fmt.Sprintf(`AT*EIAAUW=%d,1,"%s","%s",%s`, dataCID, setup.User, setup.Password, bits))
	}

	charset := r.charset(ctx, ch)
	if err := ch.Command(ctx, `AT+CSCS="UCS2"`); err != nil {
		return err
	}
	err := ch.Command(ctx, fmt.Sprintf(`AT*EIAAUW=%d,1,"%s","%s",%s`,
		dataCID, ucs2Hex(setup.User), ucs2Hex(setup.Password), bits))
	if rerr := ch.Command(ctx, fmt.Sprintf(`AT+CSCS="%s"`, ucs2Hex(charset))); rerr != nil {
		r.logger.Warn("Failed to restore character set", "charset", charset, "error", rerr)
	}
	return err
}

// charset returns the TE character set, assuming UCS2 for anything
// unusual.
func (r *RIL) charset(ctx context.Context, ch *modem.Channel) string {
	resp, err := ch.SingleLine(ctx, "AT+CSCS?", "+CSCS:")
	if err != nil {
		return "UCS2"
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return "UCS2"
	}
	cs, err := tok.NextString()
	if err != nil {
		return "UCS2"
	}
	switch {
	case cs == "GSM", cs == "IRA", cs == "UTF-8", strings.HasPrefix(cs, "8859"):
		return cs
	default:
		return "UCS2"
	}
}

// ucs2Hex encodes s as the four hex digits per UTF-16 unit the modem
// expects in UCS2 mode.
func ucs2Hex(s string) string {
	var b strings.Builder
	for _, u := range utf16.Encode([]rune(s)) {
		fmt.Fprintf(&b, "%04X", u)
	}
	return b.String()
}

// parseIPConfig reads the (<stat>,"<address>") groups of an *E2IPCFG
// reply. The last digit of stat tells an address (1) from a gateway (2)
// and a DNS server (3). At most two DNS servers are kept.
func parseIPConfig(line string) (addresses, gateways, dnses []string, err error) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return nil, nil, nil, at.ErrNoPrefix
	}
	if at.CharCount(rest, '(') == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no address groups", at.ErrInvalidResponse)
	}

	for {
		start := strings.IndexByte(rest, '(')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], ')')
		if end < 0 {
			return nil, nil, nil, fmt.Errorf("%w: unbalanced parenthesis", at.ErrInvalidResponse)
		}
		group := rest[start+1 : start+end]
		rest = rest[start+end+1:]

		tok, err := at.NewTokenizer(":" + group)
		if err != nil {
			return nil, nil, nil, err
		}
		stat, err := tok.NextInt()
		if err != nil {
			return nil, nil, nil, err
		}
		addr, err := tok.NextString()
		if err != nil {
			return nil, nil, nil, err
		}

		switch stat % 10 {
		case 1:
			addresses = append(addresses, addr)
		case 2:
			gateways = append(gateways, addr)
		case 3:
			if len(dnses) < 2 {
				dnses = append(dnses, addr)
			}
		}
	}
	if len(addresses) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no address", at.ErrInvalidResponse)
	}
	return addresses, gateways, dnses, nil
}

// requestDeactivateDataCall stops a running connection and waits for the
// modem to report it down.
func (r *RIL) requestDeactivateDataCall(c *call) (any, error) {
	enap, err := r.enapState(c.ctx, c.ch)
	if err != nil {
		return nil, err
	}
	switch enap {
	case enapConnecting:
		r.logger.Warn("Tearing down a connection still being set up")
		return nil, nil
	case enapConnected:
	default:
		return nil, nil
	}

	if err := c.ch.Command(c.ctx, "AT*ENAP=0"); err != nil {
		var code at.Code
		if !errors.As(err, &code) || code.Tier() != at.TierCME {
			return nil, err
		}
	}
	for i := 0; i < r.timing.dataCallPollTries; i++ {
		if enap, err = r.enapState(c.ctx, c.ch); err != nil {
			return nil, err
		}
		if enap == enapNotConnected {
			return nil, nil
		}
		if err := sleep(c.ctx, r.timing.dataCallPoll); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("data connection still in state %d", enap)
}

func (r *RIL) enapState(ctx context.Context, ch *modem.Channel) (int, error) {
	resp, err := ch.SingleLine(ctx, "AT*ENAP?", "*ENAP:")
	if err != nil {
		return 0, err
	}
	return firstInt(resp.Line())
}

func (r *RIL) requestLastDataCallFailCause(c *call) (any, error) {
	return r.session.LastDataCallFailCause(), nil
}

func (r *RIL) requestDataCallList(c *call) (any, error) {
	return r.dataCallList(c.ctx, c.ch)
}

// dataCallList describes the data context from AT+CGDCONT? and
// AT+CGPADDR.
func (r *RIL) dataCallList(ctx context.Context, ch *modem.Channel) ([]DataCall, error) {
	resp, err := ch.MultiLine(ctx, "AT+CGDCONT?", "+CGDCONT:")
	if err != nil {
		return nil, err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return nil, err
	}
	var dc DataCall
	if dc.CID, err = tok.NextInt(); err != nil {
		return nil, err
	}
	if dc.Type, err = tok.NextString(); err != nil {
		return nil, err
	}
	if dc.APN, err = tok.NextString(); err != nil {
		return nil, err
	}
	if state, _ := r.session.dataConnection(); state == e2napConnected {
		dc.Active = DataCallLinkDown
	}

	resp, err = ch.MultiLine(ctx, "AT+CGPADDR", "+CGPADDR:")
	if err != nil {
		return nil, err
	}
	if tok, err = at.NewTokenizer(resp.Line()); err != nil {
		return nil, err
	}
	if dc.CID, err = tok.NextInt(); err != nil {
		return nil, err
	}
	addr, err := tok.NextString()
	if err != nil {
		return nil, err
	}
	if addr != "" {
		dc.Addresses = []string{addr}
	}
	return []DataCall{dc}, nil
}

// reportDataCallList pushes the data context to the host after the
// connection state changes. A failed read is reported without a payload.
func (r *RIL) reportDataCallList(ctx context.Context, ch *modem.Channel) {
	calls, err := r.dataCallList(ctx, ch)
	if err != nil {
		r.logger.Debug("Failed to read data call list", "error", err)
		r.host.OnUnsolicited(UnsolDataCallListChanged, nil)
		return
	}
	r.host.OnUnsolicited(UnsolDataCallListChanged, calls)
}

// dataFailCause maps an *E2NAP cause to a DataFail cause. Causes it does
// not know leave prev in place.
func dataFailCause(prev, state, cause int) int {
	switch {
	case cause < 0, state == e2napConnected:
		return DataFailUnspecified
	case cause >= gprsSemanticallyIncorrectMessage && cause <= gprsMessageNotCompatibleProtocolState,
		cause == gprsProtocolErrorUnspecified:
		return DataFailProtocolErrors
	case cause == DataFailOperatorBarred,
		cause >= DataFailInsufficientResources && cause <= DataFailNSAPIInUse:
		return cause
	default:
		return prev
	}
}

// parseE2NAP reads *E2NAP: <state>[,<cause>] and the four field form that
// reports two contexts. It returns the combined state and the cause,
// which is only kept for a disconnect.
func parseE2NAP(line string) (state, cause int, err error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return 0, 0, err
	}
	commas := at.CharCount(line, ',')

	next := func() (int, int, error) {
		s, err := tok.NextInt()
		if err != nil {
			return 0, 0, err
		}
		if s < e2napDisconnected || s > e2napConnecting {
			return 0, 0, fmt.Errorf("%w: connection state %d", at.ErrInvalidResponse, s)
		}
		c := e2napUnknown
		if tok.HasMore() {
			if v, err := tok.NextInt(); err == nil && v >= 0 && v <= e2napCauseMaximum && s == e2napDisconnected {
				c = v
			}
		}
		return s, c, nil
	}

	state, cause, err = next()
	if err != nil || commas != 3 {
		return state, cause, err
	}

	state2, cause2, err := next()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case state == e2napConnecting || state2 == e2napConnecting:
		return e2napConnecting, cause, nil
	case state == e2napConnected:
		return e2napConnected, cause2, nil
	case state2 == e2napConnected:
		return e2napConnected, cause, nil
	default:
		return e2napDisconnected, cause, nil
	}
}
