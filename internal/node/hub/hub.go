package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/sensornode/pkg/mqtt/topic"
)

// Hub connects the node's modules to the broker: it maps events to topics
// and dispatches control commands to their handlers.
type Hub struct {
	nodeID       string
	controlTopic string
	qos          int

	mc     mqtt.Client
	topics *mqtttopic.TopicBuilder

	mu     sync.RWMutex
	routes map[core.Command]core.HandlerFunc
}

var _ core.Sender = (*Hub)(nil)

func New(nodeID string, client mqtt.Client, topics *mqtttopic.TopicBuilder, controlTopic string, qos int) *Hub {
	return &Hub{
		nodeID:       nodeID,
		controlTopic: controlTopic,
		qos:          qos,
		mc:           client,
		topics:       topics,
		routes:       make(map[core.Command]core.HandlerFunc),
	}
}

// Send publishes payload on the topic mapped to event. Status messages are
// retained so a collector sees the node's presence when it subscribes.
func (b *Hub) Send(ctx context.Context, event core.EventType, payload []byte) error {
	switch event {
	case core.EventTelemetry:
		return b.mc.Publish(ctx, b.topics.Telemetry(b.nodeID), b.qos, false, payload)
	case core.EventStatus:
		return b.mc.Publish(ctx, b.topics.Status(b.nodeID), 1, true, payload)
	default:
		return fmt.Errorf("unmapped event: %s", event)
	}
}

// Register routes a control command to handler.
func (b *Hub) Register(cmd core.Command, handler core.HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.routes[cmd]; ok {
		return fmt.Errorf("command %q already registered", cmd)
	}
	b.routes[cmd] = handler
	return nil
}

func (b *Hub) IsConnected() bool {
	return b.mc.IsConnected()
}

// Start connects in the background and subscribes to the control topic. It
// does not wait for the broker: the node keeps sampling while offline.
func (b *Hub) Start(ctx context.Context) error {
	if err := b.mc.Start(ctx); err != nil {
		return err
	}
	return b.mc.Subscribe(ctx, b.controlTopic, 1, b.dispatch)
}

// Announce publishes the online status. It is called after every connection.
func (b *Hub) Announce(ctx context.Context) {
	if err := b.Send(ctx, core.EventStatus, []byte(mqtttopic.StatusOnline)); err != nil {
		log.Warn("Failed to publish online status", "error", err)
		return
	}
	log.Info("Node announced", "topic", b.topics.Status(b.nodeID))
}

func (b *Hub) dispatch(ctx context.Context, topic string, payload []byte) {
	cmd := core.Command(strings.TrimSpace(string(payload)))

	b.mu.RLock()
	handler, ok := b.routes[cmd]
	b.mu.RUnlock()

	if !ok {
		log.Debug("Ignoring unknown command", "topic", topic, "command", string(cmd))
		return
	}
	log.Info("Remote command received", "command", string(cmd))
	if err := handler(ctx, payload); err != nil {
		log.Error(err, "Handler execution failed", "topic", topic, "command", string(cmd))
	}
}

// Stop publishes the offline status and disconnects.
func (b *Hub) Stop() {
	log.Info("Disconnecting MQTT client...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if b.mc.IsConnected() {
		if err := b.Send(ctx, core.EventStatus, []byte(mqtttopic.StatusOffline)); err != nil {
			log.Warn("Failed to publish offline status", "error", err)
		}
	}
	b.mc.Disconnect(ctx)
}
