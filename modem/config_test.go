package modem_test

import (
	"log/slog"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/mbmril/modem"
)

func TestConfig(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		_, err := modem.NewConfigBuilder().Build()

		if err != modem.ErrNoDialer {
			t.Errorf("expected ErrNoDialer, got: %v", err)
		}
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.Timeout != modem.DefaultTimeout {
			t.Errorf("expected default timeout, got %v", config.Timeout)
		}
		if config.HandshakeRetries != modem.DefaultHandshakeRetries {
			t.Errorf("expected %d handshake retries, got %d", modem.DefaultHandshakeRetries, config.HandshakeRetries)
		}
		if config.HandshakeTimeout != modem.DefaultHandshakeTimeout {
			t.Errorf("expected default handshake timeout, got %v", config.HandshakeTimeout)
		}
		if config.Logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("Explicit values are kept", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		logger := slog.New(slog.DiscardHandler)
		config, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			WithTimeout(time.Second).
			WithHandshake(2, 100*time.Millisecond).
			WithLogger(logger).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}

		if config.Timeout != time.Second {
			t.Errorf("expected 1s timeout, got %v", config.Timeout)
		}
		if config.HandshakeRetries != 2 || config.HandshakeTimeout != 100*time.Millisecond {
			t.Errorf("unexpected handshake settings %d/%v", config.HandshakeRetries, config.HandshakeTimeout)
		}
		if config.Logger != logger {
			t.Error("expected the configured logger")
		}
	})

	t.Run("NoTimeout is kept", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config, err := modem.NewConfigBuilder().
			WithDialer(modem.NewMockDialer(ctrl)).
			WithTimeout(modem.NoTimeout).
			Build()
		if err != nil {
			t.Fatalf("unexpected error from Build(): %v", err)
		}
		if config.Timeout != modem.NoTimeout {
			t.Errorf("expected NoTimeout, got %v", config.Timeout)
		}
	})
}
