package modem

import "errors"

var (
	// ErrNoDialer is returned when a Config has no Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrAlreadyClosed is returned when Close is called on a Channel that has
	// already been closed.
	ErrAlreadyClosed = errors.New("channel already closed")

	// ErrWoken is returned by a device transport Read or Write that was
	// interrupted by Close through the wake pipe, or called after Close.
	ErrWoken = errors.New("read interrupted by close")

	// ErrNotReady is returned by WaitReady when the transport can neither
	// bound its reads nor carry a read deadline, so waiting could block
	// forever.
	ErrNotReady = errors.New("modem did not report ready")

	// ErrReadyTimeout is returned by WaitReady when nothing arrived before
	// the timeout. Callers usually carry on regardless, since not every
	// firmware sends the indication.
	ErrReadyTimeout = errors.New("timeout waiting for modem ready")

	// ErrUnsupportedPlatform is returned by DeviceDialer on platforms
	// without termios.
	ErrUnsupportedPlatform = errors.New("raw tty devices are not supported on this platform")

	// ErrNoPortName is returned by SerialDialer without a port name.
	ErrNoPortName = errors.New("gsm: serial port name is required")

	// ErrNilContext is returned by dialers called with a nil context.
	ErrNilContext = errors.New("gsm: context is nil")
)
