package ril

import (
	"log/slog"
	"sync"

	"i4.energy/across/mbmril/modem"
)

// RadioState is the radio and SIM state the request gating is based on.
type RadioState int

const (
	RadioUnavailable RadioState = iota
	RadioOff
	RadioSIMNotReady
	RadioSIMLockedOrAbsent
	RadioSIMReady
)

func (s RadioState) String() string {
	switch s {
	case RadioUnavailable:
		return "UNAVAILABLE"
	case RadioOff:
		return "OFF"
	case RadioSIMNotReady:
		return "SIM_NOT_READY"
	case RadioSIMLockedOrAbsent:
		return "SIM_LOCKED_OR_ABSENT"
	case RadioSIMReady:
		return "SIM_READY"
	default:
		return "UNKNOWN"
	}
}

func (s RadioState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type heldPDU struct {
	event   Unsolicited
	payload any
}

// Session is the state shared by handlers, events and the unsolicited
// dispatcher of one RIL instance. It is created with the scheduler and
// reset whenever the channels are torn down.
type Session struct {
	host   Host
	sched  *Scheduler
	logger *slog.Logger

	// onSIMReady and onSIMNotReady schedule the follow-up work for radio
	// state transitions.
	onSIMReady    []EventFunc
	onSIMNotReady EventFunc

	mu             sync.Mutex
	radio          RadioState
	simRemoved     bool
	simResetting   bool
	pendingHotswap bool
	screenOn       bool
	ackOutstanding bool
	held           []heldPDU
	lastNITZ       string
	def            *modem.Channel

	// E2NAP state and cause of the data connection, and the DataFail
	// cause of the last failed setup.
	e2napState   int
	e2napCause   int
	lastDataFail int
}

// NewSession returns a session in RadioUnavailable with the screen on.
func NewSession(host Host, sched *Scheduler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		host:     host,
		sched:    sched,
		logger:   logger,
		radio:        RadioUnavailable,
		screenOn:     true,
		e2napState:   e2napUnknown,
		e2napCause:   e2napUnknown,
		lastDataFail: DataFailUnspecified,
	}
}

// RadioState returns the current radio state.
func (s *Session) RadioState() RadioState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.radio
}

// SetRadioState changes the radio state. A change, and every entry into
// RadioSIMLockedOrAbsent, is reported to the host. Entering RadioSIMReady
// schedules message storage and SIM setup on the priority lane; entering
// RadioSIMNotReady schedules a SIM poll on the normal lane.
func (s *Session) SetRadioState(state RadioState) {
	s.mu.Lock()
	old := s.radio
	s.radio = state
	s.mu.Unlock()

	s.logger.Info("Radio state changed", "old", old, "new", state)

	if state == old && state != RadioSIMLockedOrAbsent {
		return
	}
	s.host.OnUnsolicited(UnsolRadioStateChanged, state)

	switch state {
	case RadioSIMReady:
		for _, fn := range s.onSIMReady {
			s.sched.Enqueue(LanePrio, fn, 0)
		}
	case RadioSIMNotReady:
		if s.onSIMNotReady != nil {
			s.sched.Enqueue(LaneNormal, s.onSIMNotReady, 0)
		}
	}
}

// ScreenOn reports whether the host's screen is on. While it is off,
// registration notifications are disabled on the modem.
func (s *Session) ScreenOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenOn
}

func (s *Session) setScreenOn(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenOn = on
}

// SetDefault records the channel used by host surfaces that talk to the
// modem outside a scheduled request.
func (s *Session) SetDefault(ch *modem.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.def = ch
}

// Default returns the channel recorded with SetDefault.
func (s *Session) Default() (*modem.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.def == nil {
		return nil, ErrNoChannel
	}
	return s.def, nil
}

// Reset drops per-connection state when the channels close.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackOutstanding = false
	s.held = nil
	s.lastNITZ = ""
	s.simResetting = false
	s.def = nil
	s.e2napState = e2napUnknown
	s.e2napCause = e2napUnknown
}

func (s *Session) setDataConnection(state, cause int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.e2napState = state
	s.e2napCause = cause
}

// dataConnection returns the last *E2NAP state and cause.
func (s *Session) dataConnection() (state, cause int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.e2napState, s.e2napCause
}

// dataFailCause returns the *E2NAP cause of a connection that is not up,
// or 0.
func (s *Session) dataFailCause() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.e2napState == e2napConnected {
		return 0
	}
	return s.e2napCause
}

func (s *Session) setLastDataCallFailCause(cause int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDataFail = cause
}

// updateLastDataCallFailCause derives the last failure cause from the
// current *E2NAP state.
func (s *Session) updateLastDataCallFailCause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDataFail = dataFailCause(s.lastDataFail, s.e2napState, s.e2napCause)
}

// LastDataCallFailCause returns the DataFail cause of the most recent
// failed data call setup.
func (s *Session) LastDataCallFailCause() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDataFail
}

// simFlags returns the hot-swap flags.
func (s *Session) simFlags() (removed, resetting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simRemoved, s.simResetting
}

func (s *Session) setSIMRemoved(removed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simRemoved = removed
}

func (s *Session) setSIMResetting(resetting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simResetting = resetting
}

func (s *Session) setPendingHotswap(pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingHotswap = pending
}

// PendingHotswap reports whether a SIM was inserted since the channel
// was opened.
func (s *Session) PendingHotswap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingHotswap
}

// swapNITZ stores nitz and reports whether it differs from the previous
// value.
func (s *Session) swapNITZ(nitz string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastNITZ == nitz {
		return false
	}
	s.lastNITZ = nitz
	return true
}

// deliverSMS passes an SMS-class event to the host unless an earlier one
// still awaits acknowledgement, in which case it is held.
func (s *Session) deliverSMS(event Unsolicited, payload any) {
	s.mu.Lock()
	if s.ackOutstanding {
		s.held = append(s.held, heldPDU{event: event, payload: payload})
		s.mu.Unlock()
		s.logger.Debug("Holding SMS until acknowledged", "event", event)
		return
	}
	s.ackOutstanding = true
	s.mu.Unlock()

	s.host.OnUnsolicited(event, payload)
}

// acknowledge releases the next held SMS-class event, or clears the
// outstanding flag when none is held.
func (s *Session) acknowledge() {
	s.mu.Lock()
	if len(s.held) == 0 {
		s.ackOutstanding = false
		s.mu.Unlock()
		return
	}
	next := s.held[0]
	s.held = s.held[1:]
	s.mu.Unlock()

	s.host.OnUnsolicited(next.event, next.payload)
}
