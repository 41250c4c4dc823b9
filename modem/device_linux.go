//go:build linux

package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DeviceDialer opens a modem tty directly, the way the radio daemon opens
// /dev/ttyACMx. Reads wait in poll(2) on both the tty and a wake pipe so
// Close can interrupt a blocked reader without signals.
type DeviceDialer struct {
	Path string
	// Raw switches the tty to raw 8N1 mode with hardware flow control.
	Raw bool
}

// Dial opens the device, switching it to raw mode when Raw is set and the
// device is a tty.
func (d DeviceDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(d.Path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Path, err)
	}
	if d.Raw {
		if err := setRaw(fd); err != nil && !errors.Is(err, unix.ENOTTY) {
			unix.Close(fd)
			return nil, fmt.Errorf("configure %s: %w", d.Path, err)
		}
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("wake pipe: %w", err)
	}

	return &deviceTransport{
		fd:          fd,
		wakeR:       p[0],
		wakeW:       p[1],
		readTimeout: -1,
	}, nil
}

// setRaw puts the tty in raw 8N1 mode at 115200 with hardware flow
// control.
func setRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | unix.CRTSCTS | unix.B115200
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// deviceTransport owns the tty and the wake pipe. Close wakes any Read or
// Write in progress; the descriptors are closed once the last of them has
// returned, so a file number is never reused under a blocked caller.
type deviceTransport struct {
	fd    int
	wakeR int
	wakeW int

	releaseOnce sync.Once

	mu          sync.Mutex
	closed      bool
	users       int
	readTimeout time.Duration
}

// acquire registers a caller of fd. It fails once the transport is
// closed.
func (d *deviceTransport) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.users++
	return true
}

func (d *deviceTransport) done() {
	d.mu.Lock()
	d.users--
	last := d.closed && d.users == 0
	d.mu.Unlock()
	if last {
		d.release()
	}
}

func (d *deviceTransport) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *deviceTransport) Read(p []byte) (int, error) {
	if !d.acquire() {
		return 0, ErrWoken
	}
	defer d.done()

	for {
		if d.isClosed() {
			return 0, ErrWoken
		}

		fds := []unix.PollFd{
			{Fd: int32(d.fd), Events: unix.POLLIN},
			{Fd: int32(d.wakeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, d.pollTimeout())
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			// Read timeout expired.
			return 0, nil
		}
		if fds[1].Revents != 0 {
			return 0, ErrWoken
		}

		count, err := unix.Read(d.fd, p)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			continue
		case err != nil:
			return 0, err
		case count == 0:
			return 0, io.EOF
		}
		return count, nil
	}
}

func (d *deviceTransport) Write(p []byte) (int, error) {
	if !d.acquire() {
		return 0, ErrWoken
	}
	defer d.done()

	written := 0
	for written < len(p) {
		if d.isClosed() {
			return written, ErrWoken
		}
		n, err := unix.Write(d.fd, p[written:])
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			fds := []unix.PollFd{
				{Fd: int32(d.fd), Events: unix.POLLOUT},
				{Fd: int32(d.wakeR), Events: unix.POLLIN},
			}
			if _, err := unix.Poll(fds, -1); err != nil && !errors.Is(err, unix.EINTR) {
				return written, fmt.Errorf("poll: %w", err)
			}
			if fds[1].Revents != 0 {
				return written, ErrWoken
			}
			continue
		case err != nil:
			return written, err
		}
		written += n
	}
	return written, nil
}

// SetReadTimeout bounds subsequent reads; a negative value blocks
// indefinitely.
func (d *deviceTransport) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

func (d *deviceTransport) pollTimeout() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readTimeout < 0 {
		return -1
	}
	return int(d.readTimeout / time.Millisecond)
}

// Close wakes blocked callers through the pipe. The device and the read
// end of the pipe are closed here when nothing is using them, otherwise
// by the last Read or Write to return.
func (d *deviceTransport) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	idle := d.users == 0
	d.mu.Unlock()

	for {
		// EPIPE means the reader has already released the pipe.
		_, err := unix.Write(d.wakeW, []byte{0})
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	unix.Close(d.wakeW)

	if idle {
		return d.release()
	}
	return nil
}

func (d *deviceTransport) release() error {
	var err error
	d.releaseOnce.Do(func() {
		err = unix.Close(d.fd)
		unix.Close(d.wakeR)
	})
	return err
}
