package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group that can register its flags
// and validate itself.
type IOptions interface {
	// Validate returns all problems found in the option group.
	Validate() []error

	// AddFlags registers the option group's flags on fs.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a host:port pair with a usable port.
// An empty host is allowed and means all interfaces.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q in address %q", port, addr)
	}
	return nil
}

// join builds a dotted flag name from an optional prefix.
func join(prefixes []string, name string) string {
	if len(prefixes) == 0 || prefixes[0] == "" {
		return name
	}
	return prefixes[0] + "." + name
}
