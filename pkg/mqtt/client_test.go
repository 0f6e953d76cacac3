package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", WillQoS: 3})
	assert.Error(t, err)

	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883"})
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
}

func TestClientNotStarted(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, c.Publish(ctx, "t", 0, false, nil))
	assert.Error(t, c.Subscribe(ctx, "t", 0, func(context.Context, string, []byte) {}))
	assert.Error(t, c.AwaitConnection(ctx))
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	assert.Nil(t, c.willMessage())

	c.cfg.WillTopic = "OC7/status/N1"
	c.cfg.WillPayload = []byte("offline")
	c.cfg.WillRetain = true
	w := c.willMessage()
	require.NotNil(t, w)
	assert.Equal(t, "OC7/status/N1", w.Topic)
	assert.True(t, w.Retain)
}

func TestHandlersMatchFilters(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}, subs: map[string]subscription{}}
	noop := func(context.Context, string, []byte) {}
	c.subs["remote_control"] = subscription{handler: noop}
	c.subs["OC7/data/+"] = subscription{qos: 1, handler: noop}

	assert.Len(t, c.handlers("remote_control"), 1)
	assert.Len(t, c.handlers("OC7/data/N4"), 1)
	assert.Empty(t, c.handlers("OC7/status/N4"))

	opts := c.subscribeOptions()
	require.Len(t, opts, 2)
	assert.Equal(t, "OC7/data/+", opts[0].Topic)
	assert.Equal(t, byte(1), opts[0].QoS)
	assert.Equal(t, "remote_control", opts[1].Topic)
}
