package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Device is the modem tty opened directly (e.g. "/dev/ttyACM0")
	Device string
	// SerialPort is the path to the modem's serial port, used when no Device is set (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int
	// PrioDevice is an optional second tty serving the priority lane
	PrioDevice string
	// LoopbackPort connects to a modem emulator on 127.0.0.1 instead of a device
	LoopbackPort int
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// MQTTBroker is the broker URL; MQTT is disabled when empty (e.g. "tcp://localhost:1883")
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// ATTimeout is the default AT command timeout; zero waits indefinitely
	ATTimeout time.Duration
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	if config.ATTimeout < 0 {
		return nil, fmt.Errorf("invalid AT timeout %v", config.ATTimeout)
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.BindAddress = "0.0.0.0:8080"
		c.MQTTTopic = "mbmril"
		c.MQTTClientID = "mbmril-1"
		c.LogLevel = "info"
		c.ATTimeout = 3 * time.Minute
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if device := os.Getenv("MODEM_DEVICE"); device != "" {
			c.Device = device
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if prio := os.Getenv("PRIO_DEVICE"); prio != "" {
			c.PrioDevice = prio
		}

		if port := os.Getenv("LOOPBACK_PORT"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				c.LoopbackPort = p
			}
		}

		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTTBroker = broker
		}

		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.MQTTTopic = topic
		}

		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTTClientID = id
		}

		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTTUsername = user
		}

		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MQTTPassword = pass
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if timeout := os.Getenv("AT_TIMEOUT"); timeout != "" {
			if d, err := time.ParseDuration(timeout); err == nil {
				c.ATTimeout = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "device", "d":
				c.Device = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "prio-device", "x":
				c.PrioDevice = f.Value.String()
			case "port", "p":
				if p, err := strconv.Atoi(f.Value.String()); err == nil {
					c.LoopbackPort = p
				}
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-topic":
				c.MQTTTopic = f.Value.String()
			case "mqtt-client-id":
				c.MQTTClientID = f.Value.String()
			case "mqtt-username":
				c.MQTTUsername = f.Value.String()
			case "mqtt-password":
				c.MQTTPassword = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "at-timeout":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.ATTimeout = d
				}
			}
		})
		return nil
	}
}
