package log

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// Options contains configuration settings for the logger.
type Options struct {
	// Name is an optional name for the logger, which will be added as a field to each log entry.
	Name string `json:"name,omitempty" mapstructure:"name"`

	// Level is the minimum log level to output. Can be 'debug', 'info', 'warn', 'error'.
	Level string `json:"level,omitempty" mapstructure:"level"`

	// Format specifies the log output format. Can be 'json' or 'console'.
	Format string `json:"format,omitempty" mapstructure:"format"`

	// EnableColor enables colorized output for console format.
	EnableColor bool `json:"enable-color,omitempty" mapstructure:"enable-color"`

	// DisableCaller stops annotating logs with the calling function's file name and line number.
	DisableCaller bool `json:"disable-caller,omitempty" mapstructure:"disable-caller"`

	// CallerSkip increases the number of callers skipped by caller annotation.
	CallerSkip int `json:"caller-skip,omitempty" mapstructure:"caller-skip"`

	// OutputPaths is a list of paths to write logs to. Use "stdout" or "stderr" for console output.
	OutputPaths []string `json:"output-paths,omitempty" mapstructure:"output-paths"`

	// Rotation bounds the size of file outputs. Flash storage on the node is small.
	Rotation RotationOptions `json:"rotation,omitempty" mapstructure:"rotation"`
}

// RotationOptions configures rotation of file log outputs.
// A zero MaxSize disables rotation.
type RotationOptions struct {
	// MaxSize is the size in megabytes at which a log file is rotated.
	MaxSize int `json:"max-size,omitempty" mapstructure:"max-size"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `json:"max-backups,omitempty" mapstructure:"max-backups"`

	// MaxAge is the number of days to keep rotated files.
	MaxAge int `json:"max-age,omitempty" mapstructure:"max-age"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Level:       "info",
		Format:      "console",
		EnableColor: false,
		CallerSkip:  2, // Default to 2, which is correct for direct usage of the log package.
		OutputPaths: []string{"stdout"},
		Rotation: RotationOptions{
			MaxSize:    1,
			MaxBackups: 2,
			MaxAge:     7,
		},
	}
}

// Validate validates all the required options.
func (o *Options) Validate() []error {
	var errs []error

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(o.Level)); err != nil {
		errs = append(errs, fmt.Errorf("--log.level: %w", err))
	}
	if o.Format != "console" && o.Format != "json" {
		errs = append(errs, fmt.Errorf("--log.format must be 'console' or 'json', got %q", o.Format))
	}
	if o.Rotation.MaxSize < 0 || o.Rotation.MaxBackups < 0 || o.Rotation.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("--log.max-size, --log.max-backups and --log.max-age must not be negative"))
	}

	return errs
}

// AddFlags binds command-line flags to the Options fields.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "log.name", o.Name, "An optional name for the logger.")
	fs.StringVar(&o.Format, "log.format", o.Format, "The log output format ('json' or 'console').")
	fs.BoolVar(&o.EnableColor, "log.enable-color", o.EnableColor, "Enable colorized output for the console format.")
	fs.IntVar(&o.CallerSkip, "log.caller-skip", o.CallerSkip, "The number of caller frames to skip.")

	usage := "The minimum log level to output (e.g., 'debug', 'info', 'warn', 'error')."
	fs.StringVar(&o.Level, "log.level", o.Level, usage)

	usage = "Disable the caller field in logs (file and line number)."
	fs.BoolVar(&o.DisableCaller, "log.disable-caller", o.DisableCaller, usage)

	usage = "A list of log output paths (e.g., 'stdout', '/var/log/cpeer-node.log')."
	fs.StringSliceVar(&o.OutputPaths, "log.output-paths", o.OutputPaths, usage)

	fs.IntVar(&o.Rotation.MaxSize, "log.max-size", o.Rotation.MaxSize, "Rotate file outputs after this many megabytes (0 disables rotation).")
	fs.IntVar(&o.Rotation.MaxBackups, "log.max-backups", o.Rotation.MaxBackups, "Number of rotated log files to keep.")
	fs.IntVar(&o.Rotation.MaxAge, "log.max-age", o.Rotation.MaxAge, "Days to keep rotated log files.")
}
