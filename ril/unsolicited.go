package ril

import (
	"context"
	"strings"
)

// onUnsolicited is the channel handler for lines no command claimed. It
// runs on the channel's reader goroutine, which must never wait on the
// channel, so any follow-up commands are scheduled on a lane.
func (r *RIL) onUnsolicited(_ context.Context, line, pdu string) {
	// Nothing is reported while the radio is unavailable.
	if r.session.RadioState() == RadioUnavailable {
		return
	}

	switch {
	case strings.HasPrefix(line, "*ETZV:"):
		// Registration reports are off while the screen is off; NITZ still
		// arrives then.
		r.host.OnUnsolicited(UnsolNetworkStateChanged, nil)
		r.onNetworkTimeReceived(line)
	case strings.HasPrefix(line, "*EPEV"):
		// PIN events are not reliably followed by *ESIMSR.
		r.sched.Enqueue(LanePrio, r.forcePollSIMState, 0)
	case strings.HasPrefix(line, "*ESIMSR"):
		r.onSIMStateChanged(line)
	case strings.HasPrefix(line, "*E2NAP:"):
		r.onDataConnectionState(line)
	case strings.HasPrefix(line, "*E2REG:"):
		r.onNetworkStatusChanged(line)
	case strings.HasPrefix(line, "*EESIMSWAP:"):
		r.onSIMHotswap(line)
	case strings.HasPrefix(line, "+CREG:"), strings.HasPrefix(line, "+CGREG:"):
		r.host.OnUnsolicited(UnsolNetworkStateChanged, nil)
	case strings.HasPrefix(line, "+CMT:"):
		r.onNewSMS(pdu)
	case strings.HasPrefix(line, "+CBM:"):
		r.onNewBroadcastSMS(pdu)
	case strings.HasPrefix(line, "+CMTI:"):
		r.onNewSMSOnSIM(line)
	case strings.HasPrefix(line, "+CDS:"):
		r.onNewStatusReport(pdu)
	case strings.HasPrefix(line, "+CIEV: 2"):
		r.sched.Enqueue(LanePrio, r.pollSignalStrength, 0)
	case strings.HasPrefix(line, "+CIEV: 7"):
		r.sched.Enqueue(LanePrio, r.isSIMSMSStorageFull, 0)
	default:
		r.logger.Debug("Unhandled unsolicited response", "line", line)
	}
}

// onDataConnectionState handles *E2NAP. The data call list is re-read
// once the state settles, and a new connection makes the host refresh the
// network state, which may now show a faster technology.
func (r *RIL) onDataConnectionState(line string) {
	state, cause, err := parseE2NAP(line)
	if err != nil {
		r.logger.Debug("Malformed *E2NAP", "line", line, "error", err)
		return
	}
	r.session.setDataConnection(state, cause)

	dc := DataConnection{State: state}
	if state == e2napDisconnected && cause > 0 {
		dc.Cause = cause
	}
	r.host.OnUnsolicited(UnsolDataConnectionState, dc)

	if state != e2napConnecting {
		r.sched.Enqueue(LanePrio, r.reportDataCallList, 0)
	}
	if state == e2napConnected {
		r.logger.Info("Packet data connected")
		r.host.OnUnsolicited(UnsolNetworkStateChanged, nil)
	}
	r.session.updateLastDataCallFailCause()
}
