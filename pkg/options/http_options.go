package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions configures the local status server.
type HttpOptions struct {
	// Address with server address. Empty disables the server.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds reading a request and writing its response.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Addr:    "127.0.0.1:9100",
		Timeout: 10 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if o == nil || o.Addr == "" {
		return nil
	}

	var errors []error

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the status server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the local status server (empty disables it).")
	fs.DurationVar(&o.Timeout, "http.timeout", o.Timeout, "Read and write timeout of the status server.")
}
