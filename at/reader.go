package at

import (
	"bytes"
	"io"
	"log/slog"
)

// MaxLineLength is the size of the line assembly buffer. A line that does
// not fit is discarded.
const MaxLineLength = 8 * 1024

// Reader assembles lines from a modem byte stream.
//
// Lines end at '\r' or '\n' and blank lines are skipped. The SMS input
// prompt "> " is not terminated by the modem; it is returned as a line
// when it is everything that is currently buffered.
type Reader struct {
	r      io.Reader
	buf    []byte
	start  int
	end    int
	logger *slog.Logger
	onDrop func()
	err    error
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger sets the logger used to report discarded lines.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithOverflowHook registers fn to be called each time an oversized line
// is discarded.
func WithOverflowHook(fn func()) ReaderOption {
	return func(r *Reader) {
		r.onDrop = fn
	}
}

// NewReader returns a Reader pulling bytes from r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	lr := &Reader{
		r:      r,
		buf:    make([]byte, MaxLineLength),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// ReadLine blocks until a complete line is buffered and returns it without
// its terminator. The returned slice aliases the internal buffer and is
// only valid until the next call; copy it to keep it.
//
// ReadLine returns a nil line and the stream error once the underlying
// reader fails or reaches EOF.
func (r *Reader) ReadLine() ([]byte, error) {
	for {
		r.skipTerminators()

		data := r.buf[r.start:r.end]
		if bytes.Equal(data, []byte(Prompt)) {
			r.start, r.end = 0, 0
			return data, nil
		}
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			r.start += i + 1
			return data[:i], nil
		}

		if r.err != nil {
			return nil, r.err
		}
		r.fill()
	}
}

func (r *Reader) fill() {
	if r.start > 0 {
		r.end = copy(r.buf, r.buf[r.start:r.end])
		r.start = 0
	}
	if r.end >= len(r.buf) {
		r.logger.Warn("Input line exceeded buffer, discarding", "size", r.end)
		if r.onDrop != nil {
			r.onDrop()
		}
		r.end = 0
	}

	n, err := r.r.Read(r.buf[r.end:])
	r.end += n
	if err != nil {
		r.err = err
	}
}

func (r *Reader) skipTerminators() {
	for r.start < r.end && (r.buf[r.start] == '\r' || r.buf[r.start] == '\n') {
		r.start++
	}
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
}
