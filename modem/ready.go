package modem

import (
	"bytes"
	"errors"
	"os"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/mbmril/at"
)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// WaitReady reads from t until the modem announces EMRDY or timeout
// passes. It must run before a Channel is opened on t, since it consumes
// whatever the modem sends meanwhile.
//
// Reads are bounded through ReadTimeoutSetter or SetReadDeadline and the
// bound is lifted before returning.
func WaitReady(t Transport, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	bound, restore, err := readBounds(t, deadline)
	if err != nil {
		return err
	}
	defer restore()

	marker := []byte(at.UrcModuleReady)
	buf := make([]byte, 256)
	var seen []byte

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrReadyTimeout
		}
		if err := bound(remaining); err != nil {
			return err
		}

		n, err := t.Read(buf)
		seen = append(seen, buf[:n]...)
		if bytes.Contains(seen, marker) {
			return nil
		}
		if len(seen) > at.MaxLineLength {
			seen = seen[len(seen)-len(marker):]
		}

		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return ErrReadyTimeout
		case err != nil:
			return err
		}
	}
}

// readBounds returns a function bounding the next read and a function
// removing the bound.
func readBounds(t Transport, deadline time.Time) (func(time.Duration) error, func(), error) {
	switch rt := t.(type) {
	case ReadTimeoutSetter:
		bound := func(d time.Duration) error {
			return rt.SetReadTimeout(d)
		}
		restore := func() {
			_ = rt.SetReadTimeout(serial.NoTimeout)
		}
		return bound, restore, nil

	case readDeadliner:
		if err := rt.SetReadDeadline(deadline); err != nil {
			return nil, nil, err
		}
		bound := func(time.Duration) error { return nil }
		restore := func() {
			_ = rt.SetReadDeadline(time.Time{})
		}
		return bound, restore, nil
	}
	return nil, nil, ErrNotReady
}
