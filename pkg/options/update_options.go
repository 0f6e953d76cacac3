package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UpdateOptions)(nil)

// UpdateOptions tunes the update coordinator's timing and retry policy.
type UpdateOptions struct {
	CheckInterval   time.Duration `json:"check-interval" mapstructure:"check-interval"`
	InitialDelay    time.Duration `json:"initial-delay" mapstructure:"initial-delay"`
	MaxAttempts     int           `json:"max-attempts" mapstructure:"max-attempts"`
	RetryDelay      time.Duration `json:"retry-delay" mapstructure:"retry-delay"`
	LinkTimeout     time.Duration `json:"link-timeout" mapstructure:"link-timeout"`
	FetchTimeout    time.Duration `json:"fetch-timeout" mapstructure:"fetch-timeout"`
	MaxManifestSize int64         `json:"max-manifest-size" mapstructure:"max-manifest-size"`
	YieldEvery      int           `json:"yield-every" mapstructure:"yield-every"`

	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

func NewUpdateOptions() *UpdateOptions {
	return &UpdateOptions{
		CheckInterval:   time.Hour,
		InitialDelay:    30 * time.Second,
		MaxAttempts:     5,
		RetryDelay:      30 * time.Second,
		LinkTimeout:     30 * time.Second,
		FetchTimeout:    5 * time.Minute,
		MaxManifestSize: 4 << 10,
		YieldEvery:      16,
	}
}

func (o *UpdateOptions) Validate() []error {
	var errs []error

	if o.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("--update.check-interval must be positive"))
	}
	if o.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("--update.max-attempts must be at least 1"))
	}
	if o.RetryDelay < 0 || o.InitialDelay < 0 {
		errs = append(errs, fmt.Errorf("--update.retry-delay and --update.initial-delay must not be negative"))
	}
	if o.LinkTimeout <= 0 || o.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--update.link-timeout and --update.fetch-timeout must be positive"))
	}
	if o.MaxManifestSize <= 0 {
		errs = append(errs, fmt.Errorf("--update.max-manifest-size must be positive"))
	}
	if o.YieldEvery < 1 {
		errs = append(errs, fmt.Errorf("--update.yield-every must be at least 1"))
	}

	return errs
}

func (o *UpdateOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.CheckInterval, "update.check-interval", o.CheckInterval, "Interval between update checks.")
	fs.DurationVar(&o.InitialDelay, "update.initial-delay", o.InitialDelay, "Delay before the first update check after boot.")
	fs.IntVar(&o.MaxAttempts, "update.max-attempts", o.MaxAttempts, "Attempts per check for transient failures before deferring to the next check.")
	fs.DurationVar(&o.RetryDelay, "update.retry-delay", o.RetryDelay, "Fixed delay between attempts of one check.")
	fs.DurationVar(&o.LinkTimeout, "update.link-timeout", o.LinkTimeout, "Maximum time to wait for network association.")
	fs.DurationVar(&o.FetchTimeout, "update.fetch-timeout", o.FetchTimeout, "Timeout of a single manifest or payload request.")
	fs.Int64Var(&o.MaxManifestSize, "update.max-manifest-size", o.MaxManifestSize, "Maximum accepted manifest body size in bytes.")
	fs.IntVar(&o.YieldEvery, "update.yield-every", o.YieldEvery, "Archive blocks extracted between scheduler yields.")
	fs.BoolVar(&o.InsecureSkipVerify, "update.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS verification for the firmware repository.")
}
