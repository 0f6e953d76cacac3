package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds the configuration for creating a new MQTT Client.
type ClientConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// CleanStart indicates whether to start a clean session.
	// Nodes only publish periodic samples, so this is usually true.
	CleanStart bool

	// SessionExpiry is the MQTT v5 session expiry interval in seconds.
	SessionExpiry uint32

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// ReconnectDelay is the constant delay between reconnection attempts. Default is 3s.
	ReconnectDelay time.Duration

	// Will message published by the broker when the connection drops.
	// An empty WillTopic disables it.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	// OnConnected, when set, runs in its own goroutine after every
	// (re)connection once subscriptions have been restored.
	OnConnected func(ctx context.Context)
}

// setDefaultConfig applies safe default values to the configuration.
func setDefaultConfig(cfg *ClientConfig) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}

	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("broker url %q has no host", c.BrokerURL)
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("will qos must be 0, 1 or 2, got %d", c.WillQoS)
	}
	return nil
}
