package ril

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"i4.energy/across/mbmril/modem"
)

// script maps command lines to the modem's reply. Lines it does not name
// are answered with OK.
type script map[string]string

func (s script) respond(line string) string {
	if reply, ok := s[line]; ok {
		return reply
	}
	return "OK\r\n"
}

var discard = slog.New(slog.DiscardHandler)

var testTiming = timing{
	simPoll:           5 * time.Millisecond,
	storageRetry:      5 * time.Millisecond,
	radioPowerRetry:   time.Millisecond,
	radioPowerTries:   3,
	operatorPoll:      time.Millisecond,
	operatorPollTries: 3,
	dataCallPoll:      time.Millisecond,
	dataCallPollTries: 3,
}

func newTestRIL(t *testing.T, host Host) *RIL {
	t.Helper()

	ctrl := gomock.NewController(t)
	r, err := New(Config{Dialer: modem.NewMockDialer(ctrl), Logger: discard}, host)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.timing = testTiming
	return r
}

// openChannel opens a channel on a scripted transport with r handling
// unsolicited lines.
func openChannel(t *testing.T, r *RIL, s script) (*modem.Channel, *modem.TestTransport) {
	t.Helper()
	return openChannelFunc(t, r, s.respond)
}

// openChannelFunc is openChannel with replies computed by respond.
func openChannelFunc(t *testing.T, r *RIL, respond func(line string) string) (*modem.Channel, *modem.TestTransport) {
	t.Helper()

	transport := modem.NewTestTransport()
	transport.OnCommand(respond)
	ch := modem.Open(transport, r.onUnsolicited,
		modem.WithTimeout(time.Second),
		modem.WithLogger(discard),
	)
	t.Cleanup(func() {
		ch.Close()
		<-ch.Done()
	})
	return ch, transport
}

// runEvents runs the due events of lane's queue until none is left.
func runEvents(t *testing.T, r *RIL, lane Lane, ch *modem.Channel) {
	t.Helper()

	q := r.sched.Queue(lane)
	for {
		if _, events := q.Len(); events == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		e, req, err := q.next(ctx)
		cancel()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req != nil {
			t.Fatalf("unexpected request %v", req.Code)
		}
		e.fn(context.Background(), ch)
	}
}

type completion struct {
	token   Token
	status  Status
	payload any
}

type notification struct {
	event   Unsolicited
	payload any
}

// recordingHost records everything it is told.
type recordingHost struct {
	mu          sync.Mutex
	completions []completion
	events      []notification
	completed   chan completion
}

func newRecordingHost() *recordingHost {
	return &recordingHost{completed: make(chan completion, 64)}
}

func (h *recordingHost) OnRequestComplete(token Token, status Status, payload any) {
	c := completion{token, status, payload}
	h.mu.Lock()
	h.completions = append(h.completions, c)
	h.mu.Unlock()
	h.completed <- c
}

func (h *recordingHost) OnUnsolicited(event Unsolicited, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, notification{event, payload})
}

// radioStates returns the radio states reported so far.
func (h *recordingHost) radioStates() []RadioState {
	h.mu.Lock()
	defer h.mu.Unlock()

	var states []RadioState
	for _, n := range h.events {
		if n.event == UnsolRadioStateChanged {
			states = append(states, n.payload.(RadioState))
		}
	}
	return states
}

func (h *recordingHost) count(event Unsolicited) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, e := range h.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (h *recordingHost) wait(t *testing.T) completion {
	t.Helper()
	select {
	case c := <-h.completed:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a completion")
		return completion{}
	}
}
