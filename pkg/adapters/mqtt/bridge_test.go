package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weave/pkg/adapters/mqtt"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 0 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 0 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type fakeClient struct {
	published map[string][]byte
	handlers  map[string]paho.MessageHandler
	err       error
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: map[string][]byte{}, handlers: map[string]paho.MessageHandler{}}
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.published[topic] = payload.([]byte)
	return doneToken{err: c.err}
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.handlers[topic] = cb
	return doneToken{err: c.err}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.handlers[topic](nil, message{topic: topic, payload: []byte(payload)})
}

func TestBridge_Actuator(t *testing.T) {
	client := newFakeClient()
	b := mqtt.NewBridge(client, mqtt.WithTopicPrefix("lab/"))

	require.NoError(t, b.Actuator()(context.Background(), "move", [2]float64{1, -1}))

	raw, ok := client.published["lab/act/move"]
	require.True(t, ok)
	var msg mqtt.ActionMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "move", msg.Action)
	assert.Equal(t, [2]float64{1, -1}, msg.Value)

	client.err = errors.New("broker down")
	assert.Error(t, b.Actuator()(context.Background(), "move", [2]float64{}))
}

func TestBridge_SensorReadings(t *testing.T) {
	client := newFakeClient()
	b := mqtt.NewBridge(client)
	read := b.Sensor("light")

	require.NoError(t, b.Subscribe("light", "sensors/light"))
	assert.Equal(t, 0.0, read(context.Background()))

	client.deliver("sensors/light", " 4.5\n")
	assert.Equal(t, 4.5, read(context.Background()))

	client.deliver("sensors/light", `{"value": 7}`)
	assert.Equal(t, 7.0, read(context.Background()))

	client.deliver("sensors/light", "garbage")
	client.deliver("sensors/light", `{"other": 1}`)
	assert.Equal(t, 7.0, read(context.Background()), "bad payloads keep the last reading")

	client.err = errors.New("denied")
	assert.Error(t, b.Subscribe("x", "sensors/x"))
}
