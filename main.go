package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/mbmril/modem"
	"i4.energy/across/mbmril/ril"
)

func registerFlags(fs *flag.FlagSet) {
	fs.String("device", "", "Modem tty to open directly (e.g. /dev/ttyACM0)")
	fs.String("d", "", "Shorthand for --device")
	fs.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem when no device is set")
	fs.Int("baud-rate", 115200, "Baud rate for serial communication")
	fs.String("prio-device", "", "Second modem tty serving priority requests")
	fs.String("x", "", "Shorthand for --prio-device")
	fs.Int("port", 0, "Connect to a modem emulator on this loopback TCP port")
	fs.Int("p", 0, "Shorthand for --port")
	fs.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	fs.String("mqtt-broker", "", "MQTT broker URL (MQTT is disabled when empty)")
	fs.String("mqtt-topic", "mbmril", "MQTT topic prefix")
	fs.String("mqtt-client-id", "mbmril-1", "MQTT client ID")
	fs.String("mqtt-username", "", "MQTT username")
	fs.String("mqtt-password", "", "MQTT password")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Duration("at-timeout", 3*time.Minute, "Default AT command timeout (0 waits indefinitely)")
}

// commandTimeout maps the configured AT timeout to the channel's. Zero
// means no timeout, which the channel spells NoTimeout.
func commandTimeout(d time.Duration) time.Duration {
	if d == 0 {
		return modem.NoTimeout
	}
	return d
}

// dialers picks the transports for both lanes. A loopback port wins over
// a device, which wins over the serial port.
func dialers(c *Config) (normal, prio modem.Dialer) {
	switch {
	case c.LoopbackPort > 0:
		normal = modem.TCPDialer{Address: fmt.Sprintf("127.0.0.1:%d", c.LoopbackPort)}
	case c.Device != "":
		normal = modem.DeviceDialer{Path: c.Device, Raw: true}
	default:
		normal = modem.SerialDialer{PortName: c.SerialPort, BaudRate: c.BaudRate}
	}
	if c.PrioDevice != "" {
		prio = modem.DeviceDialer{Path: c.PrioDevice, Raw: true}
	}
	return normal, prio
}

func main() {
	registerFlags(flag.CommandLine)
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	normal, prio := dialers(config)
	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(normal).
		WithTimeout(commandTimeout(config.ATTimeout)).
		WithLogger(logger.With("component", "modem")).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	host := NewHost(logger.With("component", "host"), DefaultEventHistory)
	radio, err := ril.New(ril.Config{
		Dialer:     modemConfig.Dialer,
		PrioDialer: prio,
		Timeout:    modemConfig.Timeout,
		ChannelOptions: []modem.Option{
			modem.WithHandshake(modemConfig.HandshakeRetries, modemConfig.HandshakeTimeout),
		},
		Logger:        logger.With("component", "ril"),
		ChannelLogger: modemConfig.Logger,
	}, host)
	if err != nil {
		logger.Error("Failed to create RIL", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Starting radio interface", "dialer", fmt.Sprintf("%+v", normal), "prio", prio != nil)
	runDone := make(chan error, 1)
	go func() { runDone <- radio.Run(ctx) }()

	if config.MQTTBroker != "" {
		bridge := &Bridge{
			Logger: logger.With("component", "mqtt"),
			Host:   host,
			Radio:  radio,
			Topic:  config.MQTTTopic,
		}
		if err := bridge.Connect(ctx, MQTTOptions{
			Broker:   config.MQTTBroker,
			ClientID: config.MQTTClientID,
			Username: config.MQTTUsername,
			Password: config.MQTTPassword,
		}); err != nil {
			logger.Error("MQTT connect failed", "broker", config.MQTTBroker, "error", err)
		}
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Radio:  radio,
			Host:   host,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-runDone:
		logger.Error("Radio interface stopped", "error", err)
	}

	logger.Info("Closing modem connection")
	cancel()
	select {
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Radio interface stopped with error", "error", err)
		}
	case <-time.After(10 * time.Second):
		logger.Warn("Radio interface did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
