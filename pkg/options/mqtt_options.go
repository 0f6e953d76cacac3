package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/sensornode/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT client and topics.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// QoS used for telemetry publishes. The link is lossy and samples are
	// periodic, so at-most-once is the default.
	QoS int `json:"qos" mapstructure:"qos"`

	// TopicRoot prefixes the per-node topics: {TopicRoot}/data/N{id}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// ControlTopic carries remote commands shared by every node.
	ControlTopic string `json:"control-topic" mapstructure:"control-topic"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:             "tcp://localhost:1883",
		KeepAlive:          60 * time.Second,
		ConnectTimeout:     10 * time.Second,
		SessionExpiry:      60,
		CleanStart:         true,
		InsecureSkipVerify: false,
		QoS:                0,
		TopicRoot:          "OC7",
		ControlTopic:       "remote_control",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if _, err := url.Parse(o.Broker); err != nil || o.Broker == "" {
		errs = append(errs, fmt.Errorf("--mqtt.broker must be a valid URL, got %q", o.Broker))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	if o.TopicRoot == "" {
		errs = append(errs, fmt.Errorf("--mqtt.topic-root must not be empty"))
	}
	if o.ControlTopic == "" {
		errs = append(errs, fmt.Errorf("--mqtt.control-topic must not be empty"))
	}

	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, derived from the node ID).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS level for telemetry publishes.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix for node data and status topics.")
	fs.StringVar(&o.ControlTopic, "mqtt.control-topic", o.ControlTopic, "Topic carrying remote control commands.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
