// Package mqtt bridges WeaveLang host channels to an MQTT broker.
// Actions are published as JSON; sensor channels read the last value received
// on a subscribed topic.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/registry"
)

// Client is the subset of paho.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// ActionMessage is the payload published for every action.
type ActionMessage struct {
	Action    string     `json:"action"`
	Value     [2]float64 `json:"value"`
	Timestamp time.Time  `json:"ts"`
}

// Bridge is safe for concurrent use.
type Bridge struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	readings map[string]float64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTopicPrefix sets the prefix of action topics (default "weave").
// Actions go to "<prefix>/act/<action>".
func WithTopicPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithQoS sets the QoS for publishes and subscriptions.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		b.qos = qos
	}
}

// WithTimeout bounds how long a publish or subscribe waits for the broker.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge wraps an already connected client.
func NewBridge(client Client, opts ...Option) *Bridge {
	b := &Bridge{
		client:   client,
		prefix:   "weave",
		timeout:  5 * time.Second,
		logger:   logging.NewNop(),
		readings: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial connects to broker and returns a bridge over the new connection.
func Dial(broker, clientID string, opts ...Option) (*Bridge, paho.Client, error) {
	o := paho.NewClientOptions()
	o.AddBroker(broker)
	o.SetClientID(clientID)
	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)
	o.AutoReconnect = true

	b := NewBridge(nil, opts...)
	o.OnConnectionLost = func(_ paho.Client, err error) {
		b.logger.Warn("mqtt connection lost", "broker", broker, "err", err)
	}

	c := paho.NewClient(o)
	if t := c.Connect(); !t.WaitTimeout(b.timeout) || t.Error() != nil {
		if t.Error() != nil {
			return nil, nil, fmt.Errorf("mqtt connect %s: %w", broker, t.Error())
		}
		return nil, nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	b.client = c
	return b, c, nil
}

// Actuator returns a channel that publishes every action it receives.
func (b *Bridge) Actuator() registry.ActuatorFunc {
	return func(_ context.Context, action string, value [2]float64) error {
		payload, err := json.Marshal(ActionMessage{Action: action, Value: value, Timestamp: time.Now().UTC()})
		if err != nil {
			return err
		}
		return b.wait(b.client.Publish(b.prefix+"/act/"+action, b.qos, false, payload))
	}
}

// Subscribe feeds messages on topic into the named sensor channel.
// Payloads are either a bare number or a JSON object with a numeric "value".
func (b *Bridge) Subscribe(sensor, topic string) error {
	handler := func(_ paho.Client, msg paho.Message) {
		v, err := parseReading(msg.Payload())
		if err != nil {
			b.logger.Warn("ignoring mqtt reading", "topic", msg.Topic(), "err", err)
			return
		}
		b.mu.Lock()
		b.readings[sensor] = v
		b.mu.Unlock()
	}
	if err := b.wait(b.client.Subscribe(topic, b.qos, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Sensor returns a channel reading the last value received for sensor (0 before any).
func (b *Bridge) Sensor(sensor string) registry.SensorFunc {
	return func(context.Context) float64 {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.readings[sensor]
	}
}

func (b *Bridge) wait(t paho.Token) error {
	if !t.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt: no acknowledgement within %s", b.timeout)
	}
	return t.Error()
}

func parseReading(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	var msg struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return 0, fmt.Errorf("payload %q is neither a number nor JSON", s)
	}
	if msg.Value == nil {
		return 0, fmt.Errorf("payload %q has no value", s)
	}
	return *msg.Value, nil
}
