package options

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every per-concern option set.
type IOptions interface {
	// Validate checks the options and returns every problem found.
	Validate() []error

	// AddFlags binds the options to the given flag set.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a valid port.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " /\\") {
		return fmt.Errorf("%q is not a valid host", host)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("%q is not a valid port", port)
	}
	return nil
}
