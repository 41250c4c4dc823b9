package ril

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

// Registration states of +CREG and +CGREG.
const (
	RegNotRegistered = 0
	RegHome          = 1
	RegSearching     = 2
	RegDenied        = 3
	RegUnknown       = 4
	RegRoaming       = 5
)

// *E2REG access states.
const (
	e2regAccessClassBarred = 2
	e2regRegistered        = 5
)

// Payloads of the network requests.
type (
	// Operator names the registered network. Long and Short fall back to
	// Numeric when the modem has no name for it.
	Operator struct {
		Long    string `json:"long"`
		Short   string `json:"short"`
		Numeric string `json:"numeric"`
	}

	// Network is one entry of an operator scan.
	Network struct {
		Long    string `json:"long"`
		Short   string `json:"short"`
		Numeric string `json:"numeric"`
		Status  string `json:"status"`
	}

	// Registration is a CS or PS registration report. LAC and CID are hex
	// and empty when unknown.
	Registration struct {
		State      int    `json:"state"`
		LAC        string `json:"lac,omitempty"`
		CID        string `json:"cid,omitempty"`
		Tech       int    `json:"tech,omitempty"`
		DenyReason int    `json:"deny_reason,omitempty"`
	}
)

var networkStatus = []string{"unknown", "available", "current", "forbidden"}

func (r *RIL) requestSignalStrength(c *call) (any, error) {
	return r.signalStrength(c.ctx, c.ch)
}

// signalStrength reads +CSQ, falling back to the +CIND signal indicator
// when the modem reports an unknown RSSI.
func (r *RIL) signalStrength(ctx context.Context, ch *modem.Channel) (SignalStrength, error) {
	if resp, err := ch.SingleLine(ctx, "AT+CSQ", "+CSQ:"); err == nil {
		if ss, ok := parseCSQ(resp.Line()); ok && ss.RSSI != 99 {
			return ss, nil
		}
	}

	resp, err := ch.SingleLine(ctx, "AT+CIND?", "+CIND:")
	if err != nil {
		return SignalStrength{}, err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return SignalStrength{}, err
	}
	if _, err := tok.NextInt(); err != nil {
		return SignalStrength{}, err
	}
	level, err := tok.NextInt()
	if err != nil {
		return SignalStrength{}, err
	}
	// Scale the 0-5 indicator onto the 0-31 RSSI range.
	if level > 0 {
		level = level*4 - 1
	}
	return SignalStrength{RSSI: level, BER: 99}, nil
}

func parseCSQ(line string) (SignalStrength, bool) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return SignalStrength{}, false
	}
	rssi, err := tok.NextInt()
	if err != nil {
		return SignalStrength{}, false
	}
	ber, err := tok.NextInt()
	if err != nil {
		return SignalStrength{}, false
	}
	return SignalStrength{RSSI: rssi, BER: ber}, true
}

// pollSignalStrength reports the signal strength to the host.
func (r *RIL) pollSignalStrength(ctx context.Context, ch *modem.Channel) {
	ss, err := r.signalStrength(ctx, ch)
	if err != nil {
		r.logger.Warn("Polling the signal strength failed", "error", err)
		return
	}
	r.host.OnUnsolicited(UnsolSignalStrength, ss)
}

// requestOperator reads the long, short and numeric operator names in one
// command.
func (r *RIL) requestOperator(c *call) (any, error) {
	resp, err := c.ch.MultiLine(c.ctx, "AT+COPS=3,0;+COPS?;+COPS=3,1;+COPS?;+COPS=3,2;+COPS?", "+COPS:")
	if err != nil {
		return nil, err
	}
	if len(resp.Intermediates) != 3 {
		return nil, fmt.Errorf("%w: %d +COPS lines", at.ErrInvalidResponse, len(resp.Intermediates))
	}

	var names [3]string
	for i, line := range resp.Intermediates {
		tok, err := at.NewTokenizer(line)
		if err != nil {
			return nil, err
		}
		// <mode>[,<format>,<oper>]
		if _, err := tok.NextInt(); err != nil {
			return nil, err
		}
		if !tok.HasMore() {
			continue
		}
		if _, err := tok.NextInt(); err != nil {
			return nil, err
		}
		if !tok.HasMore() {
			continue
		}
		if names[i], err = tok.NextString(); err != nil {
			return nil, err
		}
	}

	op := Operator{Long: names[0], Short: names[1], Numeric: names[2]}
	if op.Long == "" {
		op.Long = op.Numeric
	}
	if op.Short == "" {
		op.Short = op.Numeric
	}
	return op, nil
}

// requestQueryAvailableNetworks scans for operators. The scan can take
// minutes.
func (r *RIL) requestQueryAvailableNetworks(c *call) (any, error) {
	resp, err := c.ch.MultiLine(c.ctx, "AT+COPS=?", "+COPS:")
	if err != nil {
		return nil, err
	}
	return parseNetworks(resp.Line())
}

// parseNetworks reads the (<stat>,<long>,<short>,<numeric>[,<AcT>])
// groups of a +COPS=? reply. The trailing mode and format ranges are not
// operators and end the list.
func parseNetworks(line string) ([]Network, error) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return nil, at.ErrNoPrefix
	}

	networks := make([]Network, 0, at.CharCount(rest, '('))
	for {
		start := strings.IndexByte(rest, '(')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], ')')
		if end < 0 {
			return nil, fmt.Errorf("%w: unbalanced parenthesis", at.ErrInvalidResponse)
		}
		group := rest[start+1 : start+end]
		rest = rest[start+end+1:]

		if !strings.Contains(group, `"`) {
			break
		}
		tok, err := at.NewTokenizer(":" + group)
		if err != nil {
			return nil, err
		}
		stat, err := tok.NextInt()
		if err != nil {
			return nil, err
		}
		var n Network
		if n.Long, err = tok.NextString(); err != nil {
			return nil, err
		}
		if n.Short, err = tok.NextString(); err != nil {
			return nil, err
		}
		if n.Numeric, err = tok.NextString(); err != nil {
			return nil, err
		}
		if stat < 0 || stat >= len(networkStatus) {
			return nil, fmt.Errorf("%w: operator status %d", at.ErrInvalidResponse, stat)
		}
		n.Status = networkStatus[stat]
		if n.Long == "" {
			n.Long = n.Numeric
		}
		if n.Short == "" {
			n.Short = n.Numeric
		}
		networks = append(networks, n)
	}
	return networks, nil
}

// requestQueryNetworkSelectionMode returns 0 for automatic and 1 for
// manual selection.
func (r *RIL) requestQueryNetworkSelectionMode(c *call) (any, error) {
	resp, err := c.ch.SingleLine(c.ctx, "AT+COPS?", "+COPS:")
	if err != nil {
		return nil, err
	}
	mode, err := firstInt(resp.Line())
	if err != nil {
		return nil, err
	}
	// Manual with automatic fallback.
	if mode == 4 {
		mode = 1
	}
	return mode, nil
}

// requestSetNetworkSelectionAutomatic switches to automatic selection,
// or restarts a stalled scan, then completes once an operator has been
// selected. The wait runs as events so the lane keeps serving requests.
func (r *RIL) requestSetNetworkSelectionAutomatic(c *call) (any, error) {
	resp, err := c.ch.SingleLine(c.ctx, "AT+COPS=3,2;+COPS?", "+COPS:")
	if err != nil {
		return nil, err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return nil, err
	}
	mode, err := tok.NextInt()
	if err != nil {
		return nil, err
	}
	var operator string
	if tok.HasMore() {
		if _, err := tok.NextInt(); err != nil {
			return nil, err
		}
		if tok.HasMore() {
			if operator, err = tok.NextString(); err != nil {
				return nil, err
			}
		}
	}

	rescan := mode == 1 || operator != ""
	if !rescan {
		// Automatic without an operator: rescan only if the modem has
		// stopped searching in either domain.
		for _, q := range []struct{ cmd, prefix string }{
			{"AT+CREG?", "+CREG:"},
			{"AT+CGREG?", "+CGREG:"},
		} {
			resp, err := c.ch.SingleLine(c.ctx, q.cmd, q.prefix)
			if err != nil {
				return nil, err
			}
			stat, err := secondInt(resp.Line())
			if err != nil {
				return nil, err
			}
			if stat == RegNotRegistered {
				rescan = true
				break
			}
		}
	}

	if rescan {
		if err := c.ch.Command(c.ctx, "AT+COPS=0"); err != nil {
			return nil, err
		}
	}

	r.sched.Enqueue(LaneNormal, r.pollOperatorSelected(c.req, 1), r.timing.operatorPoll)
	return nil, errDeferred
}

// pollOperatorSelected completes req once +COPS? names an operator, or
// fails it after the configured number of attempts.
func (r *RIL) pollOperatorSelected(req Request, attempt int) EventFunc {
	return func(ctx context.Context, ch *modem.Channel) {
		resp, err := ch.SingleLine(ctx, "AT+COPS?", "+COPS:")
		if err == nil {
			if tok, err := at.NewTokenizer(resp.Line()); err == nil {
				if _, err := tok.NextInt(); err == nil && tok.HasMore() {
					r.complete(req, StatusSuccess, nil)
					return
				}
			}
		}

		if attempt >= r.timing.operatorPollTries {
			r.logger.Warn("No operator selected", "attempts", attempt)
			r.complete(req, StatusGenericFailure, nil)
			return
		}
		r.sched.Enqueue(LaneNormal, r.pollOperatorSelected(req, attempt+1), r.timing.operatorPoll)
	}
}

func (r *RIL) requestSetNetworkSelectionManual(c *call) (any, error) {
	numeric, ok := stringArg(c.req, 0)
	if !ok || !isDigits(numeric) {
		return nil, StatusGenericFailure
	}
	return nil, c.ch.Command(c.ctx, fmt.Sprintf(`AT+COPS=1,2,"%s"`, numeric))
}

// secondInt reads the <stat> of a "+CREG: <n>,<stat>" reply.
func secondInt(line string) (int, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return 0, err
	}
	if _, err := tok.NextInt(); err != nil {
		return 0, err
	}
	return tok.NextInt()
}

// requestRegistrationState reports CS registration. With the screen off
// location reporting is disabled, so it is enabled for the query.
func (r *RIL) requestRegistrationState(c *call) (any, error) {
	if !r.session.ScreenOn() {
		if err := c.ch.Command(c.ctx, "AT+CREG=2"); err != nil {
			return nil, err
		}
		defer r.sendEach(c.ctx, c.ch, "AT+CREG=0")
	}

	resp, err := c.ch.SingleLine(c.ctx, "AT+CREG?", "+CREG:")
	if err != nil {
		return nil, err
	}
	reg, err := parseCREG(resp.Line())
	if err != nil {
		return nil, err
	}

	if reg.State == RegDenied {
		if reg.DenyReason, err = r.denyReason(c.ctx, c.ch); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// requestGPRSRegistrationState reports PS registration.
func (r *RIL) requestGPRSRegistrationState(c *call) (any, error) {
	if !r.session.ScreenOn() {
		if err := c.ch.Command(c.ctx, "AT+CGREG=2"); err != nil {
			return nil, err
		}
		defer r.sendEach(c.ctx, c.ch, "AT+CGREG=0")
	}

	resp, err := c.ch.SingleLine(c.ctx, "AT+CGREG?", "+CGREG: ")
	if err != nil {
		return nil, err
	}
	reg, err := parseCGREG(resp.Line())
	if err != nil {
		return nil, err
	}

	if reg.State == RegDenied {
		if reg.DenyReason, err = r.denyReason(c.ctx, c.ch); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *RIL) denyReason(ctx context.Context, ch *modem.Channel) (int, error) {
	resp, err := ch.SingleLine(ctx, "AT*E2REG?", "*E2REG:")
	if err != nil {
		return 0, err
	}
	return secondInt(resp.Line())
}

// parseCREG reads a +CREG reply or notification. The field layout is
// told apart by the number of commas, since both the solicited and the
// unsolicited form can appear.
func parseCREG(line string) (Registration, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return Registration{}, err
	}

	var fields []string
	switch at.CharCount(line, ',') {
	case 0: // <stat>
		fields = []string{"stat"}
	case 1: // <n>,<stat>
		fields = []string{"n", "stat"}
	case 2: // <stat>,<lac>,<cid>
		fields = []string{"stat", "lac", "cid"}
	case 3, 4: // <n>,<stat>,<lac>,<cid>[,<AcT>]
		fields = []string{"n", "stat", "lac", "cid"}
	default:
		return Registration{}, fmt.Errorf("%w: %q", at.ErrInvalidResponse, line)
	}
	return readRegistration(tok, fields)
}

// parseCGREG reads a +CGREG reply or notification. With three commas the
// layout depends on whether the second field is a quoted LAC.
func parseCGREG(line string) (Registration, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return Registration{}, err
	}

	var fields []string
	switch at.CharCount(line, ',') {
	case 0:
		fields = []string{"stat"}
	case 1:
		fields = []string{"n", "stat"}
	case 2:
		fields = []string{"stat", "lac", "cid"}
	case 3:
		if secondFieldQuoted(line) {
			fields = []string{"stat", "lac", "cid", "act"}
		} else {
			fields = []string{"n", "stat", "lac", "cid"}
		}
	case 4:
		fields = []string{"n", "stat", "lac", "cid", "act"}
	default:
		return Registration{}, fmt.Errorf("%w: %q", at.ErrInvalidResponse, line)
	}
	return readRegistration(tok, fields)
}

func secondFieldQuoted(line string) bool {
	_, rest, _ := strings.Cut(line, ":")
	parts := strings.SplitN(rest, ",", 3)
	return len(parts) > 1 && strings.HasPrefix(strings.TrimSpace(parts[1]), `"`)
}

func readRegistration(tok *at.Tokenizer, fields []string) (Registration, error) {
	var (
		reg      Registration
		lac, cid uint64
		err      error
	)
	for _, f := range fields {
		switch f {
		case "n":
			_, err = tok.NextInt()
		case "stat":
			reg.State, err = tok.NextInt()
		case "lac":
			lac, err = tok.NextHexInt()
		case "cid":
			cid, err = tok.NextHexInt()
		case "act":
			reg.Tech, err = tok.NextInt()
		}
		if err != nil {
			return Registration{}, err
		}
	}
	if lac > 0 {
		reg.LAC = fmt.Sprintf("%04x", lac)
	}
	if cid > 0 {
		reg.CID = fmt.Sprintf("%08x", cid)
	}
	return reg, nil
}

// onNetworkStatusChanged handles *E2REG: <n>,<cs>,<ps>.
func (r *RIL) onNetworkStatusChanged(line string) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return
	}
	var status [3]int
	for i := range status {
		if status[i], err = tok.NextInt(); err != nil {
			r.logger.Debug("Malformed *E2REG", "line", line, "error", err)
			return
		}
	}
	cs, ps := status[1], status[2]

	restricted := RestrictedNone
	if cs == e2regAccessClassBarred {
		restricted |= RestrictedCSAll
	}
	if ps == e2regAccessClassBarred {
		restricted |= RestrictedPSAll
	}
	r.host.OnUnsolicited(UnsolRestrictedStateChanged, restricted)

	// Registered: refresh the signal bar early.
	if cs == e2regRegistered || ps == e2regRegistered {
		r.sched.Enqueue(LanePrio, r.pollSignalStrength, 0)
	}
}

// onNetworkTimeReceived handles *ETZV: <tz>,<time>,<timestamp>[,<dst>].
// The modem leaves DST out of the zone, so it is added back. Unchanged
// values are not reported again; the modem clock is resynced either way.
func (r *RIL) onNetworkTimeReceived(line string) {
	nitz, err := parseNITZ(line)
	if err != nil {
		r.logger.Warn("Failed to parse NITZ", "line", line, "error", err)
		return
	}

	if r.session.swapNITZ(nitz) {
		r.host.OnUnsolicited(UnsolNITZTimeReceived, nitz)
	} else {
		r.logger.Debug("Discarding unchanged NITZ", "nitz", nitz)
	}
	r.sched.Enqueue(LaneNormal, r.sendTime, 0)
}

// parseNITZ renders an *ETZV line as "yy/MM/dd,HH:mm:ss±tz,dst" with tz
// in quarter hours.
func parseNITZ(line string) (string, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return "", err
	}
	tz, err := tok.NextInt()
	if err != nil {
		return "", err
	}
	stamp, err := tok.NextString()
	if err != nil {
		return "", err
	}
	if _, err := tok.NextString(); err != nil {
		return "", err
	}
	dst := 0
	if tok.HasMore() {
		if dst, err = tok.NextInt(); err != nil {
			dst = 0
		}
	}
	if len(stamp) < 2 {
		return "", fmt.Errorf("%w: time %q", at.ErrInvalidResponse, stamp)
	}
	return fmt.Sprintf("%s%+03d,%02d", stamp[2:], tz+dst*4, dst), nil
}

// sendTime sets the modem clock to local time.
func (r *RIL) sendTime(ctx context.Context, ch *modem.Channel) {
	if err := ch.Command(ctx, clockCommand(time.Now())); err != nil {
		r.logger.Debug("Failed to set modem clock", "error", err)
	}
}

// clockCommand formats t for AT+CCLK with the zone in quarter hours.
func clockCommand(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf(`at+cclk="%s%c%02d"`, t.Format("06/01/02,15:04:05"), sign, offset/900)
}
