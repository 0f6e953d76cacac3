package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TelemetryOptions)(nil)

// TelemetryOptions tunes the sensor, telemetry and housekeeping tasks.
type TelemetryOptions struct {
	Interval           time.Duration `json:"interval" mapstructure:"interval"`
	Samples            int           `json:"samples" mapstructure:"samples"`
	CalibrationSamples int           `json:"calibration-samples" mapstructure:"calibration-samples"`
	SampleYieldEvery   int           `json:"sample-yield-every" mapstructure:"sample-yield-every"`
	WatchdogInterval   time.Duration `json:"watchdog-interval" mapstructure:"watchdog-interval"`
	HeartbeatInterval  time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	HeartbeatPulse     time.Duration `json:"heartbeat-pulse" mapstructure:"heartbeat-pulse"`
	RebootInterval     time.Duration `json:"reboot-interval" mapstructure:"reboot-interval"`
}

func NewTelemetryOptions() *TelemetryOptions {
	return &TelemetryOptions{
		Interval:           2 * time.Second,
		Samples:            500,
		CalibrationSamples: 2000,
		SampleYieldEvery:   1,
		WatchdogInterval:   5 * time.Second,
		HeartbeatInterval:  2 * time.Second,
		HeartbeatPulse:     500 * time.Millisecond,
		RebootInterval:     4 * time.Hour,
	}
}

func (o *TelemetryOptions) Validate() []error {
	var errs []error

	if o.Interval <= 0 || o.WatchdogInterval <= 0 || o.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("--telemetry.interval, --telemetry.watchdog-interval and --telemetry.heartbeat-interval must be positive"))
	}
	if o.Samples < 1 || o.CalibrationSamples < 1 {
		errs = append(errs, fmt.Errorf("--telemetry.samples and --telemetry.calibration-samples must be at least 1"))
	}
	if o.SampleYieldEvery < 1 {
		errs = append(errs, fmt.Errorf("--telemetry.sample-yield-every must be at least 1"))
	}
	if o.HeartbeatPulse < 0 || o.HeartbeatPulse >= o.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("--telemetry.heartbeat-pulse must be shorter than the heartbeat interval"))
	}
	if o.RebootInterval < 0 {
		errs = append(errs, fmt.Errorf("--telemetry.reboot-interval must not be negative"))
	}

	return errs
}

func (o *TelemetryOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Interval, "telemetry.interval", o.Interval, "Delay between telemetry publishes.")
	fs.IntVar(&o.Samples, "telemetry.samples", o.Samples, "Accelerometer samples per RMS value.")
	fs.IntVar(&o.CalibrationSamples, "telemetry.calibration-samples", o.CalibrationSamples, "Accelerometer samples averaged by a calibration.")
	fs.IntVar(&o.SampleYieldEvery, "telemetry.sample-yield-every", o.SampleYieldEvery, "Samples acquired between scheduler yields.")
	fs.DurationVar(&o.WatchdogInterval, "telemetry.watchdog-interval", o.WatchdogInterval, "Sensor presence polling interval.")
	fs.DurationVar(&o.HeartbeatInterval, "telemetry.heartbeat-interval", o.HeartbeatInterval, "Heartbeat period.")
	fs.DurationVar(&o.HeartbeatPulse, "telemetry.heartbeat-pulse", o.HeartbeatPulse, "How long the heartbeat indicator stays on.")
	fs.DurationVar(&o.RebootInterval, "telemetry.reboot-interval", o.RebootInterval, "Periodic self-reboot interval (0 disables).")
}
