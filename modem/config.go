package modem

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout bounds a command when neither the request nor the
	// channel sets a timeout.
	DefaultTimeout = 3 * time.Minute

	// DefaultHandshakeRetries is how many probes Handshake sends.
	DefaultHandshakeRetries = 8

	// DefaultHandshakeTimeout bounds each probe, and is also the settle
	// delay after a successful handshake.
	DefaultHandshakeTimeout = 250 * time.Millisecond
)

// Config describes how to reach a modem and how its Channel behaves.
type Config struct {
	Dialer           Dialer
	Timeout          time.Duration
	HandshakeRetries int
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HandshakeRetries == 0 {
		c.HandshakeRetries = DefaultHandshakeRetries
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with no dialer set.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithTimeout(t time.Duration) *ConfigBuilder {
	b.config.Timeout = t
	return b
}

func (b *ConfigBuilder) WithHandshake(retries int, timeout time.Duration) *ConfigBuilder {
	b.config.HandshakeRetries = retries
	b.config.HandshakeTimeout = timeout
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
