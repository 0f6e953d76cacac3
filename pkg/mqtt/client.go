package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/mqtt/topic"
)

var errNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg *ClientConfig
	cm  *autopaho.ConnectionManager

	mu   sync.RWMutex
	subs map[string]subscription

	connected atomic.Bool

	// ctx is handed to message handlers; it ends when the client stops.
	ctx context.Context
}

type subscription struct {
	qos     int
	handler MessageHandler
}

// NewClient creates a new MQTT client implementing the Client interface.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // validated in NewClient

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
		},
		WillMessage: c.willMessage(),
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.route,
			},
		},
		OnConnectionUp: c.onConnectionUp,
		OnConnectError: c.onConnectError,
	}

	log.Info("Starting MQTT Client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)

	c.ctx = ctx
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	_ = c.cm.Disconnect(ctx)
	c.connected.Store(false)
	log.Info("MQTT Client disconnected")
}

// Publish fails fast with ErrNotConnected instead of queueing while the link is down.
func (c *pahoClient) Publish(ctx context.Context, name string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}

	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   name,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", name, err)
	}
	return nil
}

// Subscribe records the handler and, when connected, subscribes right away.
// Otherwise the subscription is sent with the others on the next connection.
func (c *pahoClient) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.connected.Load() {
		log.Info("Subscription deferred until connected", "topic", filter)
		return nil
	}
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	log.Info("Subscribed to topic", "topic", filter)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, filter string) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	if !c.connected.Load() {
		return nil
	}
	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// onConnectionUp restores every subscription in one SUBSCRIBE packet.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	log.Info("MQTT Connection established")
	c.connected.Store(true)

	if opts := c.subscribeOptions(); len(opts) > 0 {
		if _, err := cm.Subscribe(c.handlerContext(), &paho.Subscribe{Subscriptions: opts}); err != nil {
			log.Error(err, "Failed to restore subscriptions", "count", len(opts))
		} else {
			log.Info("Subscriptions restored", "count", len(opts))
		}
	}

	if c.cfg.OnConnected != nil {
		go c.cfg.OnConnected(c.handlerContext())
	}
}

func (c *pahoClient) subscribeOptions() []paho.SubscribeOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := make([]paho.SubscribeOptions, 0, len(c.subs))
	for filter, s := range c.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: filter, QoS: byte(s.qos)})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].Topic < opts[j].Topic })
	return opts
}

func (c *pahoClient) onConnectError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT Connection failed, retrying", "retryIn", c.cfg.ReconnectDelay)
}

func (c *pahoClient) onClientError(err error) {
	c.connected.Store(false)
	log.Error(err, "MQTT Client internal error")
}

func (c *pahoClient) onServerDisconnect(d *paho.Disconnect) {
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	log.Warn("MQTT Server requested disconnect", "code", d.ReasonCode, "reason", reason)
}

// handlers returns the handlers whose filter selects name.
func (c *pahoClient) handlers(name string) []MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var hs []MessageHandler
	for filter, s := range c.subs {
		if topic.Match(filter, name) {
			hs = append(hs, s.handler)
		}
	}
	return hs
}

// route dispatches a received message off the reader loop. Every message is acknowledged.
func (c *pahoClient) route(p paho.PublishReceived) (bool, error) {
	hs := c.handlers(p.Packet.Topic)
	if len(hs) == 0 {
		log.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
		return true, nil
	}

	ctx := c.handlerContext()
	for _, h := range hs {
		go h(ctx, p.Packet.Topic, p.Packet.Payload)
	}
	return true, nil
}

func (c *pahoClient) handlerContext() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *pahoClient) willMessage() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}
