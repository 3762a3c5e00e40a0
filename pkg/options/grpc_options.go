package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*GrpcOptions)(nil)

// GrpcOptions configure the arbiter's gRPC health endpoint and clients that check it.
type GrpcOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Timeout bounds a single client call.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewGrpcOptions returns GrpcOptions with default values.
func NewGrpcOptions() *GrpcOptions {
	return &GrpcOptions{
		Network: "tcp",
		Addr:    "0.0.0.0:8091",
		Timeout: 5 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *GrpcOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errors []error

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to the gRPC endpoint to the specified FlagSet.
func (o *GrpcOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, join(prefixes, "grpc.network"), o.Network, "Specify the network for the gRPC server.")
	fs.StringVar(&o.Addr, join(prefixes, "grpc.addr"), o.Addr, "Specify the gRPC server bind address and port.")
	fs.DurationVar(&o.Timeout, join(prefixes, "grpc.timeout"), o.Timeout, "Timeout for a single gRPC call.")
}
