package modem

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using channels.
// Reads block until data is queued with SendData or the transport is closed,
// the way a real serial port blocks the channel's reader.
//
// A responder registered with OnCommand plays the modem side: it is called
// for every command line ('\r' terminated) and every PDU (Ctrl-Z
// terminated) and its reply, if any, is queued for reading.
type TestTransport struct {
	readChan chan []byte
	done     chan struct{}
	once     sync.Once
	pending  []byte

	mu        sync.Mutex
	written   bytes.Buffer
	line      strings.Builder
	responder func(line string) string
}

// NewTestTransport creates a new test transport for testing.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// OnCommand registers the modem-side responder.
func (t *TestTransport) OnCommand(fn func(line string) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

func (t *TestTransport) Write(p []byte) (int, error) {
	select {
	case <-t.done:
		return 0, io.ErrClosedPipe
	default:
	}

	var replies []string
	t.mu.Lock()
	t.written.Write(p)
	for _, b := range p {
		if b == 0x1b {
			// Escape aborts the line being entered.
			t.line.Reset()
			continue
		}
		if b != '\r' && b != 0x1a {
			t.line.WriteByte(b)
			continue
		}
		line := t.line.String()
		t.line.Reset()
		if t.responder != nil {
			if reply := t.responder(line); reply != "" {
				replies = append(replies, reply)
			}
		}
	}
	t.mu.Unlock()

	for _, r := range replies {
		t.SendData(r)
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		select {
		case data := <-t.readChan:
			t.pending = data
		case <-t.done:
			return 0, io.EOF
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.once.Do(func() {
		close(t.done)
	})
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	select {
	case t.readChan <- []byte(data):
	case <-t.done:
	}
}

// Written returns everything written to the transport so far.
func (t *TestTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}
