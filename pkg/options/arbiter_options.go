package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	PolicySequential   = "sequential"
	PolicyParallel     = "parallel"
	PolicyTrafficLight = "trafficlight"
)

var _ IOptions = (*ArbiterOptions)(nil)

// ArbiterOptions configure the centralized arbiter.
type ArbiterOptions struct {
	// Policy is "sequential" (one vehicle at a time), "parallel" (non-conflicting lanes share the box)
	// or "trafficlight" (roads take turns).
	Policy string `json:"policy" mapstructure:"policy"`

	// ConflictFile is an optional YAML conflict table used by the parallel and trafficlight policies.
	ConflictFile string `json:"conflict-file" mapstructure:"conflict-file"`

	// Group is the shared subscription group so several arbiter replicas can split the load.
	Group string `json:"group" mapstructure:"group"`

	// Roads lists the entry points of each road in rotation order, joined by '+', e.g. "0+2".
	Roads []string `json:"roads" mapstructure:"roads"`

	// RotationInterval is how long each road stays enabled.
	RotationInterval time.Duration `json:"rotation-interval" mapstructure:"rotation-interval"`

	// TransitionPeriod is the yellow phase at the end of each rotation during which nobody is admitted.
	TransitionPeriod time.Duration `json:"transition-period" mapstructure:"transition-period"`
}

func NewArbiterOptions() *ArbiterOptions {
	return &ArbiterOptions{
		Policy:           PolicyParallel,
		Group:            "crossway-arbiter",
		Roads:            []string{"0+2", "1+3"},
		RotationInterval: 30 * time.Second,
		TransitionPeriod: 10 * time.Second,
	}
}

// RoadEntries parses Roads.
func (o *ArbiterOptions) RoadEntries() ([][]int, error) {
	if len(o.Roads) == 0 {
		return nil, fmt.Errorf("arbiter.roads is empty")
	}
	roads := make([][]int, 0, len(o.Roads))
	for _, r := range o.Roads {
		var entries []int
		for _, f := range strings.Split(r, "+") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("arbiter.roads: invalid road %q: %w", r, err)
			}
			entries = append(entries, n)
		}
		roads = append(roads, entries)
	}
	return roads, nil
}

func (o *ArbiterOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	switch o.Policy {
	case PolicySequential, PolicyParallel:
	case PolicyTrafficLight:
		if _, err := o.RoadEntries(); err != nil {
			errs = append(errs, err)
		}
		if o.RotationInterval <= 0 {
			errs = append(errs, fmt.Errorf("arbiter.rotation-interval must be positive, got %s", o.RotationInterval))
		}
		if o.TransitionPeriod < 0 || o.TransitionPeriod >= o.RotationInterval {
			errs = append(errs, fmt.Errorf("arbiter.transition-period must be in [0, %s), got %s", o.RotationInterval, o.TransitionPeriod))
		}
	default:
		errs = append(errs, fmt.Errorf("arbiter.policy must be %q, %q or %q, got %q",
			PolicySequential, PolicyParallel, PolicyTrafficLight, o.Policy))
	}
	if o.Group == "" {
		errs = append(errs, fmt.Errorf("arbiter.group is required"))
	}
	return errs
}

func (o *ArbiterOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Policy, join(prefixes, "arbiter.policy"), o.Policy, "Admission policy: 'sequential', 'parallel' or 'trafficlight'.")
	fs.StringVar(&o.ConflictFile, join(prefixes, "arbiter.conflict-file"), o.ConflictFile, "YAML conflict table. Empty uses the built-in four-way intersection.")
	fs.StringVar(&o.Group, join(prefixes, "arbiter.group"), o.Group, "MQTT shared subscription group name.")
	fs.StringSliceVar(&o.Roads, join(prefixes, "arbiter.roads"), o.Roads, "Roads of the trafficlight policy in rotation order, each a '+'-joined list of entry points.")
	fs.DurationVar(&o.RotationInterval, join(prefixes, "arbiter.rotation-interval"), o.RotationInterval, "How long each road stays enabled under the trafficlight policy.")
	fs.DurationVar(&o.TransitionPeriod, join(prefixes, "arbiter.transition-period"), o.TransitionPeriod, "Yellow phase at the end of each rotation during which no vehicle is admitted.")
}
