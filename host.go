package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"i4.energy/across/mbmril/modem"
	"i4.energy/across/mbmril/ril"
)

// DefaultEventHistory is how many unsolicited events Host keeps for
// GET /events.
const DefaultEventHistory = 128

// Radio is the part of the RIL the host surfaces drive.
type Radio interface {
	Dispatch(req ril.Request)
	Session() *ril.Session
	Channel(lane ril.Lane) *modem.Channel
}

// Result is a completed request as reported to HTTP and MQTT clients.
type Result struct {
	Token   ril.Token  `json:"token"`
	Status  ril.Status `json:"status"`
	Payload any        `json:"payload,omitempty"`
}

// Event is an unsolicited event as reported to HTTP and MQTT clients.
type Event struct {
	Name    string    `json:"name"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// Host implements ril.Host. It hands completions to the callers waiting
// on them and fans unsolicited events out to subscribers.
type Host struct {
	logger *slog.Logger
	tokens atomic.Uint64

	mu          sync.Mutex
	waiting     map[ril.Token]chan Result
	recent      []Event
	limit       int
	subscribers []func(Event)
}

// NewHost returns a Host keeping the last limit events.
func NewHost(logger *slog.Logger, limit int) *Host {
	if limit <= 0 {
		limit = DefaultEventHistory
	}
	return &Host{
		logger:  logger,
		waiting: make(map[ril.Token]chan Result),
		limit:   limit,
	}
}

// Request dispatches a request to radio and waits for its completion.
func (h *Host) Request(ctx context.Context, radio Radio, code ril.Code, data any) (Result, error) {
	token := ril.Token(h.tokens.Inc())
	done := make(chan Result, 1)

	h.mu.Lock()
	h.waiting[token] = done
	h.mu.Unlock()

	radio.Dispatch(ril.Request{Code: code, Data: data, Token: token})

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiting, token)
		h.mu.Unlock()
		return Result{}, ctx.Err()
	}
}

func (h *Host) OnRequestComplete(token ril.Token, status ril.Status, payload any) {
	h.mu.Lock()
	done, ok := h.waiting[token]
	delete(h.waiting, token)
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("Completion without a waiting caller", "token", token, "status", status)
		return
	}
	done <- Result{Token: token, Status: status, Payload: payload}
}

func (h *Host) OnUnsolicited(event ril.Unsolicited, payload any) {
	e := Event{Name: event.String(), Payload: payload, Time: time.Now()}
	h.logger.Debug("Unsolicited event", "event", e.Name)

	h.mu.Lock()
	h.recent = append(h.recent, e)
	if len(h.recent) > h.limit {
		h.recent = h.recent[len(h.recent)-h.limit:]
	}
	subscribers := h.subscribers
	h.mu.Unlock()

	for _, fn := range subscribers {
		fn(e)
	}
}

// Subscribe registers fn for every later event. fn runs on the goroutine
// reporting the event and must not block.
func (h *Host) Subscribe(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Events returns the recent events, oldest first.
func (h *Host) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.recent...)
}
