package ril

import (
	"errors"

	"i4.energy/across/mbmril/at"
)

// requestOEMHookStrings passes the first string to the modem unchanged and
// returns every line of the reply, final response last. Only a channel
// failure fails the request; a modem error is a valid reply.
func (r *RIL) requestOEMHookStrings(c *call) (any, error) {
	cmd, ok := stringArg(c.req, 0)
	if !ok {
		return nil, StatusGenericFailure
	}
	r.logger.Debug("OEM hook", "command", cmd)

	resp, err := c.ch.Raw(c.ctx, cmd)
	if err != nil {
		var code at.Code
		if !errors.As(err, &code) || code.Tier() == at.TierAT {
			return nil, err
		}
	}
	if resp == nil || resp.Final == "" {
		return nil, at.ErrInvalidResponse
	}

	lines := make([]string, 0, len(resp.Intermediates)+1)
	lines = append(lines, resp.Intermediates...)
	return append(lines, resp.Final), nil
}
