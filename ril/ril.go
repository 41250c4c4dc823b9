// Package ril drives an Ericsson MBM modem over one or two AT channels and
// exposes it to a host as requests, completions and unsolicited events.
package ril

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"i4.energy/across/mbmril/modem"
)

const (
	// DefaultRetryInterval is the wait between attempts to open a device.
	DefaultRetryInterval = 5 * time.Second
	// DefaultReadyTimeout bounds the wait for EMRDY after opening a device.
	DefaultReadyTimeout = 10 * time.Second
	// DefaultPrioTimeout is the command timeout on the priority lane.
	DefaultPrioTimeout = 30 * time.Second
)

// Config describes the devices behind each lane.
type Config struct {
	// Dialer opens the normal lane's device. Required.
	Dialer modem.Dialer
	// PrioDialer, if set, opens a second device serving the priority lane.
	PrioDialer modem.Dialer
	// Timeout is the normal lane's command timeout. Zero uses
	// modem.DefaultTimeout and modem.NoTimeout waits indefinitely.
	Timeout time.Duration
	// PrioTimeout is the priority lane's command timeout, defaulting to
	// DefaultPrioTimeout.
	PrioTimeout time.Duration
	// RetryInterval is the wait between failed device opens.
	RetryInterval time.Duration
	// ReadyTimeout bounds the EMRDY wait. Negative skips the wait.
	ReadyTimeout time.Duration
	// ChannelOptions are applied to every channel after the lane's
	// timeout and logger.
	ChannelOptions []modem.Option
	Logger         *slog.Logger
	// ChannelLogger receives the channels' logs, tagged with their lane.
	// It defaults to Logger.
	ChannelLogger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = modem.DefaultTimeout
	}
	if c.PrioTimeout == 0 {
		c.PrioTimeout = DefaultPrioTimeout
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ChannelLogger == nil {
		c.ChannelLogger = c.Logger
	}
}

// timing holds the delays of the modem state machines.
type timing struct {
	simPoll           time.Duration
	storageRetry      time.Duration
	radioPowerRetry   time.Duration
	radioPowerTries   int
	operatorPoll      time.Duration
	operatorPollTries int
	dataCallPoll      time.Duration
	dataCallPollTries int
}

var defaultTiming = timing{
	simPoll:           time.Second,
	storageRetry:      3 * time.Second,
	radioPowerRetry:   time.Second,
	radioPowerTries:   10,
	operatorPoll:      2 * time.Second,
	operatorPollTries: 30,
	dataCallPoll:      200 * time.Millisecond,
	dataCallPollTries: 85,
}

// RIL serves host requests on scheduler lanes, each backed by a modem
// channel that is re-established whenever it fails.
type RIL struct {
	cfg     Config
	host    Host
	logger  *slog.Logger
	sched   *Scheduler
	session *Session
	timing  timing
	running atomic.Bool

	mu       sync.Mutex
	channels map[Lane]*modem.Channel
}

// New returns a RIL reporting to host. Call Run to start it.
func New(cfg Config, host Host) (*RIL, error) {
	if cfg.Dialer == nil {
		return nil, ErrNoDialer
	}
	cfg.setDefaults()

	sched := NewScheduler(cfg.PrioDialer != nil)
	r := &RIL{
		cfg:      cfg,
		host:     host,
		logger:   cfg.Logger,
		sched:    sched,
		session:  NewSession(host, sched, cfg.Logger.With("component", "session")),
		timing:   defaultTiming,
		channels: make(map[Lane]*modem.Channel),
	}
	r.session.onSIMReady = []EventFunc{r.checkMessageStorageReady, r.onSIMReady}
	r.session.onSIMNotReady = r.pollSIMState
	return r, nil
}

// Session returns the shared radio session.
func (r *RIL) Session() *Session {
	return r.session
}

// Scheduler returns the lane scheduler.
func (r *RIL) Scheduler() *Scheduler {
	return r.sched
}

// Channel returns the channel currently serving lane, or nil.
func (r *RIL) Channel(lane Lane) *modem.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels[lane]
}

// Dispatch queues req. If its lane is closed the request completes at once
// with StatusRadioNotAvailable.
func (r *RIL) Dispatch(req Request) {
	if err := r.sched.Dispatch(req); err != nil {
		r.logger.Debug("Refusing request on closed lane", "request", req.Code, "token", req.Token)
		r.complete(req, StatusRadioNotAvailable, nil)
	}
}

func (r *RIL) complete(req Request, status Status, payload any) {
	r.logger.Debug("Request complete", "request", req.Code, "token", req.Token, "status", status)
	r.host.OnRequestComplete(req.Token, status, payload)
}

// closeLanes closes every lane so the runners re-establish their
// channels, and fails the requests that were still queued.
func (r *RIL) closeLanes() {
	for _, req := range r.sched.CloseAll() {
		r.complete(req, StatusRadioNotAvailable, nil)
	}
}

func (r *RIL) onReaderClosed() {
	r.logger.Info("AT channel closed")
	if !r.session.PendingHotswap() {
		r.session.SetRadioState(RadioUnavailable)
	}
	r.closeLanes()
}

func (r *RIL) onTimeout(ch *modem.Channel) {
	r.logger.Warn("AT channel timeout, restarting")
	if err := ch.SendEscape(); err != nil {
		r.logger.Debug("Failed to send escape", "error", err)
	}
	r.session.SetRadioState(RadioUnavailable)
	r.closeLanes()
}

func (r *RIL) setChannel(lane Lane, ch *modem.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch == nil {
		delete(r.channels, lane)
		return
	}
	r.channels[lane] = ch
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
