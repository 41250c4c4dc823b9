//go:build !linux

package modem

import "context"

// DeviceDialer opens a modem tty directly. It is only implemented on
// Linux; use SerialDialer elsewhere.
type DeviceDialer struct {
	Path string
	Raw  bool
}

// Dial always fails with ErrUnsupportedPlatform.
func (d DeviceDialer) Dial(ctx context.Context) (Transport, error) {
	return nil, ErrUnsupportedPlatform
}
