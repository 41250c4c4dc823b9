package modem

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a modem.
//
// A Transport is assumed to be already connected and ready for use.
// Typical implementations include serial ports, raw tty devices, TCP
// connections to emulators, or in-memory fakes used for testing. Close
// must unblock a Read in progress so the channel's reader can exit.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a modem.
//
// Dialer abstracts how the modem connection is created and is only used
// while (re)connecting. Once a Transport is obtained, the Dialer is no
// longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// ReadTimeoutSetter is implemented by transports whose reads can be
// bounded, such as go.bug.st/serial ports and device transports.
type ReadTimeoutSetter interface {
	SetReadTimeout(t time.Duration) error
}

// SerialDialer opens a modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// ReadTimeout bounds each read when positive. The channel reader
	// treats an empty read as no data, so a timeout only matters to
	// callers reading the port directly.
	ReadTimeout time.Duration
}

// Dial opens the serial port in 8N1 mode.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, ErrNoPortName
	}
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	baud := d.BaudRate
	if baud == 0 {
		baud = 115200
	}
	port, err := serial.Open(d.PortName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	if d.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
		}
	}
	return port, nil
}

// TCPDialer connects to a modem exposed on a TCP port, for example an
// emulator listening on loopback.
type TCPDialer struct {
	Address string
}

// Dial connects to the configured address.
func (d TCPDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Address, err)
	}
	return conn, nil
}
