package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*BeaconOptions)(nil)

// BeaconOptions configure the ad hoc beacon gossip.
type BeaconOptions struct {
	// Group is the UDP multicast group:port beacons are broadcast to.
	Group string `json:"group" mapstructure:"group"`

	// Interface names the network interface to join the group on. Empty lets the kernel choose.
	Interface string `json:"interface" mapstructure:"interface"`

	// MinPeriod and MaxPeriod bound the jittered beacon interval.
	MinPeriod time.Duration `json:"min-period" mapstructure:"min-period"`
	MaxPeriod time.Duration `json:"max-period" mapstructure:"max-period"`

	// MaxLost is the number of consecutive beacons a peer may miss before it is evicted.
	MaxLost int `json:"max-lost" mapstructure:"max-lost"`
}

func NewBeaconOptions() *BeaconOptions {
	return &BeaconOptions{
		Group:     "239.255.42.99:5007",
		MinPeriod: 100 * time.Millisecond,
		MaxPeriod: 1000 * time.Millisecond,
		MaxLost:   5,
	}
}

// EvictionThreshold is the silence after which a neighbor is considered gone.
func (o *BeaconOptions) EvictionThreshold() time.Duration {
	return o.MaxPeriod * time.Duration(o.MaxLost)
}

func (o *BeaconOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if err := ValidateAddress(o.Group); err != nil {
		errs = append(errs, err)
	}
	if o.MinPeriod <= 0 {
		errs = append(errs, fmt.Errorf("beacon.min-period must be positive, got %s", o.MinPeriod))
	}
	if o.MaxPeriod < o.MinPeriod {
		errs = append(errs, fmt.Errorf("beacon.max-period %s is below beacon.min-period %s", o.MaxPeriod, o.MinPeriod))
	}
	if o.MaxLost < 1 {
		errs = append(errs, fmt.Errorf("beacon.max-lost must be at least 1, got %d", o.MaxLost))
	}
	return errs
}

func (o *BeaconOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Group, join(prefixes, "beacon.group"), o.Group, "UDP multicast group:port used for beacons.")
	fs.StringVar(&o.Interface, join(prefixes, "beacon.interface"), o.Interface, "Network interface joined to the beacon group.")
	fs.DurationVar(&o.MinPeriod, join(prefixes, "beacon.min-period"), o.MinPeriod, "Lower bound of the jittered beacon interval.")
	fs.DurationVar(&o.MaxPeriod, join(prefixes, "beacon.max-period"), o.MaxPeriod, "Upper bound of the jittered beacon interval.")
	fs.IntVar(&o.MaxLost, join(prefixes, "beacon.max-lost"), o.MaxLost, "Consecutive lost beacons before a neighbor is evicted.")
}
