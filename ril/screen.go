package ril

// requestScreenState enables ([1]) or disables ([0]) the registration,
// packet domain and indicator notifications the host only needs while its
// screen is on.
func (r *RIL) requestScreenState(c *call) (any, error) {
	state, ok := intArg(c.req, 0)
	if !ok {
		return nil, StatusGenericFailure
	}

	switch state {
	case 1:
		r.session.setScreenOn(true)
		if err := sendAll(c.ctx, c.ch, "AT+CREG=2", "AT+CGREG=2", "AT+CGEREP=1,0"); err != nil {
			return nil, err
		}
		r.isSIMSMSStorageFull(c.ctx, c.ch)
		r.pollSignalStrength(c.ctx, c.ch)
		if err := c.ch.Command(c.ctx, "AT+CMER=3,0,0,1"); err != nil {
			return nil, err
		}
	case 0:
		r.session.setScreenOn(false)
		if err := sendAll(c.ctx, c.ch, "AT+CREG=0", "AT+CGREG=0", "AT+CGEREP=0,0", "AT+CMER=3,0,0,0"); err != nil {
			return nil, err
		}
	default:
		return nil, StatusGenericFailure
	}
	return nil, nil
}
