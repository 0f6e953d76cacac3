package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/sensornode/internal/node"
	"github.com/autopeer-io/sensornode/pkg/app"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/options"
)

type NodeAgentOptions struct {
	Node        *options.NodeOptions      `json:"node" mapstructure:"node"`
	Update      *options.UpdateOptions    `json:"update" mapstructure:"update"`
	Telemetry   *options.TelemetryOptions `json:"telemetry" mapstructure:"telemetry"`
	HAL         *options.HALOptions       `json:"hal" mapstructure:"hal"`
	MqttOptions *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3Options   *options.S3Options        `json:"s3" mapstructure:"s3"`
	HttpOptions *options.HttpOptions      `json:"http" mapstructure:"http"`
	Log         *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*NodeAgentOptions)(nil)

func NewNodeAgentOptions() *NodeAgentOptions {
	o := &NodeAgentOptions{
		Node:        options.NewNodeOptions(),
		Update:      options.NewUpdateOptions(),
		Telemetry:   options.NewTelemetryOptions(),
		HAL:         options.NewHALOptions(),
		MqttOptions: options.NewMqttOptions(),
		S3Options:   options.NewS3Options(),
		HttpOptions: options.NewHttpOptions(),
		Log:         log.NewOptions(),
	}

	return o
}

func (o *NodeAgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Node.AddFlags(fss.FlagSet("node"))
	o.Update.AddFlags(fss.FlagSet("update"))
	o.Telemetry.AddFlags(fss.FlagSet("telemetry"))
	o.HAL.AddFlags(fss.FlagSet("hal"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *NodeAgentOptions) Complete() error {
	return nil
}

func (o *NodeAgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Node.Validate()...)
	errs = append(errs, o.Update.Validate()...)
	errs = append(errs, o.Telemetry.Validate()...)
	errs = append(errs, o.HAL.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	if o.Node.Source == options.SourceS3 {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *NodeAgentOptions) Config() (*node.Config, error) {
	return &node.Config{
		NodeOptions:      o.Node,
		UpdateOptions:    o.Update,
		TelemetryOptions: o.Telemetry,
		HALOptions:       o.HAL,
		MqttOptions:      o.MqttOptions,
		S3Options:        o.S3Options,
		HttpOptions:      o.HttpOptions,
	}, nil
}
