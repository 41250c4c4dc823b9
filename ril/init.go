package ril

import (
	"context"
	"fmt"

	"i4.energy/across/mbmril/modem"
)

// initialize runs the setup sequence for a freshly opened channel.
func (r *RIL) initialize(ctx context.Context, lane Lane, ch *modem.Channel) error {
	if err := r.initializeCommon(ctx, ch); err != nil {
		return err
	}
	if lane == LaneNormal {
		if err := r.initializeChannel(ctx, ch); err != nil {
			return err
		}
	}
	// The priority setup goes to the priority device when there is one.
	if !r.sched.HasPrio() || lane == LanePrio {
		if err := r.initializePrioChannel(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

func (r *RIL) initializeCommon(ctx context.Context, ch *modem.Channel) error {
	r.session.setPendingHotswap(false)

	if err := ch.Handshake(ctx); err != nil {
		return err
	}

	// Echo off, verbose result codes.
	if err := sendAll(ctx, ch, "ATE0V1", `AT+CSCS="UTF-8"`, "AT+CMEE=1", "AT*E2NAP=1"); err != nil {
		return err
	}

	r.sendTime(ctx, ch)

	// Hot-swap reporting is optional.
	if err := ch.Command(ctx, "AT*EESIMSWAP=1"); err != nil {
		r.logger.Debug("SIM hot-swap reporting unavailable", "error", err)
	}

	// No service reporting, DCD follows the connection, ignore DTR,
	// 9600 bps V.32 non-transparent bearer.
	return sendAll(ctx, ch, "AT+CR=0", "AT&C=1", "AT&D=0", "AT+CBST=7,0,1")
}

// initializeChannel configures what can be set while the radio is off.
func (r *RIL) initializeChannel(ctx context.Context, ch *modem.Channel) error {
	r.session.SetRadioState(RadioOff)

	if err := sendAll(ctx, ch, "AT+CGREG=2", "AT+CFUN=4"); err != nil {
		return err
	}

	// Anything but a definite answer counts as off.
	if on, err := r.isRadioOn(ctx, ch); err == nil && on {
		r.session.SetRadioState(RadioSIMNotReady)
	}

	return sendAll(ctx, ch, "AT*ESIMSR=1", "AT+CMGF=0")
}

// initializePrioChannel subscribes to PIN events.
func (r *RIL) initializePrioChannel(ctx context.Context, ch *modem.Channel) error {
	return sendAll(ctx, ch, "AT*EPEE=1")
}

// sendAll sends each command in turn and stops at the first failure.
func sendAll(ctx context.Context, ch *modem.Channel, cmds ...string) error {
	for _, cmd := range cmds {
		if err := ch.Command(ctx, cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

// sendEach sends every command and ignores failures.
func (r *RIL) sendEach(ctx context.Context, ch *modem.Channel, cmds ...string) {
	for _, cmd := range cmds {
		if err := ch.Command(ctx, cmd); err != nil {
			r.logger.Debug("Command failed", "command", cmd, "error", err)
		}
	}
}
