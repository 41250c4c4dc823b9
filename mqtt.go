package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/mbmril/ril"
)

// MQTTOptions selects the broker the bridge connects to.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// publisher is the part of mqtt.Client the bridge publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// Bridge publishes unsolicited events to MQTT and serves requests read
// from <topic>/requests, answering on <topic>/responses.
type Bridge struct {
	Logger  *slog.Logger
	Host    *Host
	Radio   Radio
	Topic   string
	Timeout time.Duration

	client publisher
}

// MQTTRequest is a request read from <topic>/requests. ID is echoed in
// the response.
type MQTTRequest struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MQTTResponse is published on <topic>/responses for every request.
type MQTTResponse struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
	*Result
}

func (b *Bridge) requestTopic() string  { return b.Topic + "/requests" }
func (b *Bridge) responseTopic() string { return b.Topic + "/responses" }
func (b *Bridge) eventTopic(name string) string {
	return b.Topic + "/events/" + name
}

// Connect connects to the broker, subscribes to requests on every
// (re)connect and starts publishing events. The client disconnects when
// ctx is done.
func (b *Bridge) Connect(ctx context.Context, o MQTTOptions) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.Logger.Warn("MQTT connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.Logger.Info("MQTT connected, subscribing", "topic", b.requestTopic())
		if token := c.Subscribe(b.requestTopic(), 0, func(_ mqtt.Client, m mqtt.Message) {
			b.handleMessage(ctx, m.Payload())
		}); token.Wait() && token.Error() != nil {
			b.Logger.Error("MQTT subscribe failed", "topic", b.requestTopic(), "error", token.Error())
		}
	})

	client := mqtt.NewClient(opts)
	b.client = client
	b.Host.Subscribe(b.publishEvent)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		b.Logger.Info("Disconnecting from MQTT broker")
		client.Disconnect(500)
	}()
	return nil
}

func (b *Bridge) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.Logger.Error("Failed to encode MQTT payload", "topic", topic, "error", err)
		return
	}
	// Waiting here would stall the goroutine reporting the event.
	b.client.Publish(topic, 0, false, payload)
}

func (b *Bridge) publishEvent(e Event) {
	b.publish(b.eventTopic(e.Name), e)
}

// handleMessage decodes a request and serves it on its own goroutine so
// a slow modem does not hold up the client's message routing.
func (b *Bridge) handleMessage(ctx context.Context, payload []byte) {
	var req MQTTRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.Logger.Warn("MQTT bad payload", "error", err)
		return
	}

	code, err := ril.ParseCode(req.Name)
	if err != nil {
		b.publish(b.responseTopic(), MQTTResponse{ID: req.ID, Name: req.Name, Error: err.Error()})
		return
	}

	data := ril.DataFor(code)
	if data != nil && len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, data); err != nil {
			b.publish(b.responseTopic(), MQTTResponse{ID: req.ID, Name: req.Name, Error: err.Error()})
			return
		}
	}

	go b.serve(ctx, req, code, data)
}

func (b *Bridge) serve(ctx context.Context, req MQTTRequest, code ril.Code, data any) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := b.Host.Request(ctx, b.Radio, code, data)
	if err != nil {
		b.Logger.Warn("MQTT request not completed", "request", code, "error", err)
		b.publish(b.responseTopic(), MQTTResponse{ID: req.ID, Name: req.Name, Error: err.Error()})
		return
	}
	b.publish(b.responseTopic(), MQTTResponse{ID: req.ID, Name: req.Name, Result: &res})
}
