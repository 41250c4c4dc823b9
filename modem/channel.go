package modem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/mbmril/at"
)

// NoTimeout makes a Request wait for its final response indefinitely.
const NoTimeout time.Duration = -1

const handshakeCommand = "ATE0V1"

// UnsolicitedHandler receives every line that is not part of a pending
// command's reply. pdu is only set for the two-line SMS notifications
// (+CMT, +CDS, +CBM), whose second line the reader collects before the
// call.
//
// The handler runs on the channel's reader goroutine. ctx identifies that
// goroutine: a Send made with it fails with at.ErrInvalidThread instead of
// deadlocking. Long work should be handed to another goroutine.
type UnsolicitedHandler func(ctx context.Context, line, pdu string)

// Request describes one command and how to recognise its reply.
type Request struct {
	// Command is written followed by a carriage return.
	Command string
	// Type and Prefix select which reply lines are intermediates.
	Type   at.CommandType
	Prefix string
	// PDU, when set, is written after the "> " prompt and terminated with
	// Ctrl-Z.
	PDU string
	// Timeout overrides the channel default. Use NoTimeout to wait
	// indefinitely.
	Timeout time.Duration
	// Raw accepts any reply shape and returns the Response even when the
	// final line is an error.
	Raw bool
}

// Response holds a completed command's reply.
type Response struct {
	Success       bool
	Final         string
	Intermediates []string
}

// Line returns the first intermediate line, or "" if there is none.
func (r *Response) Line() string {
	if r == nil || len(r.Intermediates) == 0 {
		return ""
	}
	return r.Intermediates[0]
}

// command is the reply record of the one command in flight.
type command struct {
	typ    at.CommandType
	prefix string
	pdu    string

	success       bool
	final         string
	intermediates []string
	err           error

	finished chan struct{}
}

func (cmd *command) accepts(line string) bool {
	switch cmd.typ {
	case at.Numeric:
		return len(cmd.intermediates) == 0 && line != "" && line[0] >= '0' && line[0] <= '9'
	case at.SingleLine:
		return len(cmd.intermediates) == 0 && strings.HasPrefix(line, cmd.prefix)
	case at.MultiLine:
		return strings.HasPrefix(line, cmd.prefix)
	default:
		return false
	}
}

type readerKey struct{}

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout sets the default command timeout. Zero or NoTimeout waits
// indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.timeout = d
	}
}

// WithHandshake sets the number of probes and the per-probe timeout used
// by Handshake.
func WithHandshake(retries int, timeout time.Duration) Option {
	return func(c *Channel) {
		c.handshakeRetries = retries
		c.handshakeTimeout = timeout
	}
}

// WithLogger sets the channel logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// Channel multiplexes synchronous commands and unsolicited notifications
// over one modem byte stream.
//
// A single reader goroutine owns the stream's read side and classifies
// every line. At most one command is in flight; concurrent Send calls
// queue behind it.
type Channel struct {
	transport Transport
	reader    *at.Reader
	handler   UnsolicitedHandler
	logger    *slog.Logger
	metrics   Metrics

	handshakeRetries int
	handshakeTimeout time.Duration

	// sem is the request mutex. It is a channel so waiting honours ctx.
	sem chan struct{}
	// wmu serialises writes from callers, the reader (PDUs) and escapes.
	wmu sync.Mutex

	// mu guards everything below.
	mu             sync.Mutex
	pending        *command
	timeout        time.Duration
	onTimeout      func()
	onReaderClosed func()
	closed         bool
	readerClosed   bool
	notified       bool

	readerCtx context.Context
	done      chan struct{}
}

// Open starts a Channel on an established transport.
func Open(t Transport, h UnsolicitedHandler, opts ...Option) *Channel {
	c := &Channel{
		transport:        t,
		handler:          h,
		logger:           slog.Default(),
		timeout:          DefaultTimeout,
		handshakeRetries: DefaultHandshakeRetries,
		handshakeTimeout: DefaultHandshakeTimeout,
		sem:              make(chan struct{}, 1),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.readerCtx = context.WithValue(context.Background(), readerKey{}, c)
	c.reader = at.NewReader(t,
		at.WithReaderLogger(c.logger),
		at.WithOverflowHook(func() { c.metrics.LinesDropped.Inc() }),
	)

	go c.readLoop()
	return c
}

// Send writes a command and waits for its final response.
//
// A failed final response is returned as an at.Code. SingleLine, MultiLine
// and Numeric requests that complete without an intermediate line fail
// with at.ErrInvalidResponse. On timeout Send returns at.ErrTimeout and
// then runs the timeout callback on the calling goroutine.
func (c *Channel) Send(ctx context.Context, req Request) (*Response, error) {
	if c.isReader(ctx) {
		return nil, at.ErrInvalidThread
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	resp, err := c.sendLocked(ctx, req, c.commandTimeout(req))
	c.release()

	if err != nil {
		c.metrics.CommandFailures.Inc()
	}
	if errors.Is(err, at.ErrTimeout) {
		c.metrics.Timeouts.Inc()
		c.logger.Warn("Command timed out", "command", req.Command)
		c.mu.Lock()
		fn := c.onTimeout
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return resp, err
}

// Command sends a command that expects no intermediate response.
func (c *Channel) Command(ctx context.Context, cmd string) error {
	_, err := c.Send(ctx, Request{Command: cmd, Type: at.NoResult})
	return err
}

// SingleLine sends a command whose reply is one line starting with prefix.
func (c *Channel) SingleLine(ctx context.Context, cmd, prefix string) (*Response, error) {
	return c.Send(ctx, Request{Command: cmd, Type: at.SingleLine, Prefix: prefix})
}

// MultiLine sends a command whose reply is any number of lines starting
// with prefix.
func (c *Channel) MultiLine(ctx context.Context, cmd, prefix string) (*Response, error) {
	return c.Send(ctx, Request{Command: cmd, Type: at.MultiLine, Prefix: prefix})
}

// Numeric sends a command whose reply is one line starting with a digit,
// such as AT+CIMI.
func (c *Channel) Numeric(ctx context.Context, cmd string) (*Response, error) {
	return c.Send(ctx, Request{Command: cmd, Type: at.Numeric})
}

// SMS sends a command that is followed by a PDU, such as AT+CMGS.
func (c *Channel) SMS(ctx context.Context, cmd, pdu, prefix string) (*Response, error) {
	return c.Send(ctx, Request{Command: cmd, Type: at.SingleLine, Prefix: prefix, PDU: pdu})
}

// Raw sends an opaque command on behalf of a host. Every non-final line
// is captured and the Response is returned even if the command failed.
func (c *Channel) Raw(ctx context.Context, cmd string) (*Response, error) {
	return c.Send(ctx, Request{Command: cmd, Type: at.MultiLine, Raw: true})
}

// Handshake probes the modem until it answers, then waits for stray final
// responses from a modem that was mid-reply when the channel opened to
// drain as unsolicited lines.
func (c *Channel) Handshake(ctx context.Context) error {
	if c.isReader(ctx) {
		return at.ErrInvalidThread
	}
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	var err error
	for range c.handshakeRetries {
		_, err = c.sendLocked(ctx, Request{Command: handshakeCommand, Type: at.NoResult}, c.handshakeTimeout)
		if err == nil || errors.Is(err, at.ErrChannelClosed) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	c.logger.Debug("Pausing to drain unmatched final responses", "delay", c.handshakeTimeout)
	select {
	case <-time.After(c.handshakeTimeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendEscape writes a bare escape character, which aborts a pending SMS
// prompt or data entry on the modem. It is meant for timeout recovery.
func (c *Channel) SendEscape() error {
	return c.write(at.Escape)
}

// SetTimeout changes the default command timeout. Zero waits indefinitely.
func (c *Channel) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// SetOnTimeout registers fn to run on the caller's goroutine whenever a
// command times out.
func (c *Channel) SetOnTimeout(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTimeout = fn
}

// SetOnReaderClosed registers fn to run when the stream ends before Close
// is called. It runs on the reader goroutine, or immediately if the reader
// has already stopped.
func (c *Channel) SetOnReaderClosed(fn func()) {
	c.mu.Lock()
	c.onReaderClosed = fn
	notify := fn != nil && c.readerClosed && !c.closed && !c.notified
	if notify {
		c.notified = true
	}
	c.mu.Unlock()

	if notify {
		fn()
	}
}

// Close marks the channel closed, fails the pending command with
// at.ErrChannelClosed and closes the transport, which wakes the reader.
// It does not wait for the reader to exit; use Done for that.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.closed = true
	c.failPending()
	c.mu.Unlock()

	return c.transport.Close()
}

// Done is closed once the reader goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Metrics returns the channel's counters.
func (c *Channel) Metrics() *Metrics {
	return &c.metrics
}

func (c *Channel) isReader(ctx context.Context) bool {
	return ctx != nil && ctx.Value(readerKey{}) == c
}

func (c *Channel) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) release() {
	<-c.sem
}

func (c *Channel) commandTimeout(req Request) time.Duration {
	if req.Timeout != 0 {
		return req.Timeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// sendLocked runs one command round trip. The caller holds sem.
func (c *Channel) sendLocked(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	cmd := &command{
		typ:      req.Type,
		prefix:   req.Prefix,
		pdu:      req.PDU,
		finished: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed || c.readerClosed {
		c.mu.Unlock()
		return nil, at.ErrChannelClosed
	}
	if c.pending != nil {
		c.mu.Unlock()
		return nil, at.ErrCommandPending
	}
	c.pending = cmd
	c.mu.Unlock()

	c.logger.Debug("AT>", "command", req.Command)
	c.metrics.CommandsSent.Inc()
	if err := c.writeLine(req.Command); err != nil {
		c.clearPending(cmd)
		return nil, fmt.Errorf("write command %q: %w: %w", req.Command, at.ErrGeneric, err)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-cmd.finished:
	case <-expired:
		if c.clearPending(cmd) {
			return nil, at.ErrTimeout
		}
	case <-ctx.Done():
		if c.clearPending(cmd) {
			return nil, ctx.Err()
		}
	}
	// The reader may have completed the command while the timer fired.
	<-cmd.finished

	if cmd.err != nil {
		return nil, cmd.err
	}
	resp := &Response{
		Success:       cmd.success,
		Final:         cmd.final,
		Intermediates: cmd.intermediates,
	}
	if !resp.Success {
		code := at.ParseFinalResponse(resp.Final)
		if req.Raw {
			return resp, code
		}
		return nil, code
	}
	if !req.Raw && req.Type != at.NoResult && len(resp.Intermediates) == 0 {
		return nil, at.ErrInvalidResponse
	}
	return resp, nil
}

// clearPending drops cmd if it is still the pending command and reports
// whether it did.
func (c *Channel) clearPending(cmd *command) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != cmd {
		return false
	}
	c.pending = nil
	return true
}

// failPending completes the pending command with at.ErrChannelClosed.
// c.mu must be held.
func (c *Channel) failPending() {
	if c.pending == nil {
		return
	}
	c.pending.err = at.ErrChannelClosed
	close(c.pending.finished)
	c.pending = nil
}

// finish records the final line of the pending command. c.mu must be
// held.
func (c *Channel) finish(cmd *command, success bool, line string) {
	cmd.success = success
	cmd.final = line
	c.pending = nil
	close(cmd.finished)
}

func (c *Channel) readLoop() {
	defer close(c.done)

	for {
		line, err := c.reader.ReadLine()
		if err != nil {
			c.readerStopped(err)
			return
		}
		s := string(line)
		c.logger.Debug("AT<", "line", s)

		if at.IsSMSUnsolicited(s) {
			pdu, err := c.reader.ReadLine()
			if err != nil {
				c.readerStopped(err)
				return
			}
			c.logger.Debug("AT<", "pdu", string(pdu))
			c.unsolicited(s, string(pdu))
			continue
		}
		c.processLine(s)
	}
}

func (c *Channel) processLine(line string) {
	c.mu.Lock()
	cmd := c.pending

	switch {
	case cmd == nil:
		c.mu.Unlock()
		c.unsolicited(line, "")
		return
	case at.IsFinalSuccess(line):
		c.finish(cmd, true, line)
		c.mu.Unlock()
		return
	case at.IsFinalError(line):
		c.finish(cmd, false, line)
		c.mu.Unlock()
		return
	case cmd.pdu != "" && line == at.Prompt:
		pdu := cmd.pdu
		cmd.pdu = ""
		c.mu.Unlock()
		c.writePDU(pdu)
		return
	case cmd.accepts(line):
		cmd.intermediates = append(cmd.intermediates, line)
		c.mu.Unlock()
		return
	}

	c.mu.Unlock()
	c.unsolicited(line, "")
}

func (c *Channel) unsolicited(line, pdu string) {
	c.metrics.UnsolicitedLines.Inc()
	if c.handler == nil {
		c.logger.Debug("Dropping unsolicited line", "line", line)
		return
	}
	c.handler(c.readerCtx, line, pdu)
}

// readerStopped runs the reader closed callback before failing the
// outstanding command, so its caller cannot go on to serve more work on
// this channel before the owner knows it is gone.
func (c *Channel) readerStopped(err error) {
	c.mu.Lock()
	c.readerClosed = true
	closing := c.closed
	fn := c.onReaderClosed
	notify := fn != nil && !closing && !c.notified
	if notify {
		c.notified = true
	}
	c.mu.Unlock()

	if closing {
		c.logger.Debug("Reader stopped", "error", err)
	} else {
		c.logger.Warn("Reader closed unexpectedly", "error", err)
	}
	if notify {
		fn()
	}

	c.mu.Lock()
	c.failPending()
	c.mu.Unlock()
}

func (c *Channel) writeLine(cmd string) error {
	c.mu.Lock()
	closed := c.closed || c.readerClosed
	c.mu.Unlock()
	if closed {
		return at.ErrChannelClosed
	}
	if err := c.write(cmd); err != nil {
		return err
	}
	return c.write(at.CR)
}

func (c *Channel) writePDU(pdu string) {
	c.logger.Debug("AT>", "pdu", pdu)
	if err := c.write(pdu); err != nil {
		c.logger.Error("Failed to write PDU", "error", err)
		return
	}
	if err := c.write(at.CtrlZ); err != nil {
		c.logger.Error("Failed to terminate PDU", "error", err)
		return
	}
	c.metrics.PDUsWritten.Inc()
}

// write loops until all of s is written, retrying short writes.
func (c *Channel) write(s string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	b := []byte(s)
	for len(b) > 0 {
		n, err := c.transport.Write(b)
		c.metrics.BytesWritten.Add(int64(n))
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
