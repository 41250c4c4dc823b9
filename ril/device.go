package ril

import (
	"context"
	"errors"
	"strings"

	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

func (r *RIL) requestGetIMSI(c *call) (any, error) {
	resp, err := c.ch.Numeric(c.ctx, "AT+CIMI")
	if err != nil {
		return nil, err
	}
	return resp.Line(), nil
}

func (r *RIL) requestGetIMEI(c *call) (any, error) {
	resp, err := c.ch.Numeric(c.ctx, "AT+CGSN")
	if err != nil {
		return nil, err
	}
	return resp.Line(), nil
}

// requestGetIMEISV returns the two digit software version number.
func (r *RIL) requestGetIMEISV(c *call) (any, error) {
	resp, err := c.ch.MultiLine(c.ctx, "AT*EVERS", "SVN")
	if err != nil {
		resp, err = c.ch.MultiLine(c.ctx, "AT*EEVINFO", "SVN")
		if err != nil {
			return nil, err
		}
	}
	svn, ok := parseSVN(resp.Line())
	if !ok {
		return nil, at.ErrInvalidResponse
	}
	return svn, nil
}

// parseSVN reads lines such as "SVN  : 02".
func parseSVN(line string) (string, bool) {
	fields := strings.Fields(strings.TrimPrefix(line, "SVN"))
	if len(fields) < 2 {
		return "", false
	}
	return fields[1], true
}

func (r *RIL) requestBasebandVersion(c *call) (any, error) {
	resp, err := c.ch.SingleLine(c.ctx, "AT+CGMR", "")
	if err != nil {
		return nil, err
	}
	return resp.Line(), nil
}

// requestRadioPower turns the radio off with [0] and on with [1]. Any
// other transition, including switching on a radio that is not off, fails.
func (r *RIL) requestRadioPower(c *call) (any, error) {
	on, ok := intArg(c.req, 0)
	if !ok {
		return nil, StatusGenericFailure
	}

	state := r.session.RadioState()
	switch {
	case on == 0 && state != RadioOff:
		if err := c.ch.Command(c.ctx, "AT+CFUN=4"); err != nil {
			return nil, err
		}
		r.session.SetRadioState(RadioOff)

	case on > 0 && state == RadioOff:
		if err := c.ch.Command(c.ctx, "AT+CFUN=1"); err != nil {
			// The module reports EMRDY before it accepts CFUN=1 and answers
			// CME 272 meanwhile.
			r.logger.Debug("Radio power on failed, retrying", "error", err)
			if err := r.retryRadioPower(c.ctx, c.ch); err != nil {
				return nil, err
			}
		}
		r.session.SetRadioState(RadioSIMNotReady)

	default:
		return nil, StatusGenericFailure
	}

	c.after = func() {
		r.host.OnUnsolicited(UnsolRestrictedStateChanged, RestrictedNone)
	}
	return nil, nil
}

func (r *RIL) retryRadioPower(ctx context.Context, ch *modem.Channel) error {
	var err error
	for range r.timing.radioPowerTries {
		if err := sleep(ctx, r.timing.radioPowerRetry); err != nil {
			return err
		}
		if err = ch.Command(ctx, "AT+CFUN=1"); err == nil {
			return nil
		}
	}
	return err
}

// isRadioOn reports whether AT+CFUN? shows full, GSM-only or WCDMA-only
// functionality.
func (r *RIL) isRadioOn(ctx context.Context, ch *modem.Channel) (bool, error) {
	resp, err := ch.SingleLine(ctx, "AT+CFUN?", "+CFUN:")
	if err != nil {
		return false, err
	}
	fun, err := firstInt(resp.Line())
	if err != nil {
		return false, err
	}
	switch fun {
	case 1, 5, 6:
		return true, nil
	default:
		return false, nil
	}
}

// onSIMReady completes the modem setup once the SIM is unlocked. Failures
// are logged and skipped so one unsupported command does not block the
// rest.
func (r *RIL) onSIMReady(ctx context.Context, ch *modem.Channel) {
	r.checkMessageStorageReady(ctx, ch)

	r.sendEach(ctx, ch,
		"AT+CSMS=0",
		// SMS-DELIVER and CBM as +CMT/+CBM, status reports as +CDS.
		"AT+CNMI=2,2,2,1,0",
	)

	if err := ch.Command(ctx, "AT+CREG=2"); err != nil {
		// Some firmware in tethered mode lacks location reporting.
		r.sendEach(ctx, ch, "AT+CREG=1")
	}

	r.sendEach(ctx, ch, "AT*E2REG=1", "AT+CGEREP=1,0", "AT+CMGF=0")

	if err := ch.Command(ctx, "AT*ETZR=3"); err != nil {
		r.logger.Debug("Degrading NITZ reporting to mode 2")
		r.sendEach(ctx, ch, "AT*ETZR=2")
	}

	r.sendEach(ctx, ch, "AT+CMER=3,0,0,1")
}

// firstInt parses the first integer after a reply line's prefix.
func firstInt(line string) (int, error) {
	tok, err := at.NewTokenizer(line)
	if err != nil {
		return 0, errors.Join(at.ErrInvalidResponse, err)
	}
	n, err := tok.NextInt()
	if err != nil {
		return 0, errors.Join(at.ErrInvalidResponse, err)
	}
	return n, nil
}
