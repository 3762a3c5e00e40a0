package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

const (
	ModeAdHoc       = "adhoc"
	ModeCentralized = "centralized"
)

var _ IOptions = (*CoordinationOptions)(nil)

// CoordinationOptions select and tune the intersection access strategy.
type CoordinationOptions struct {
	// Mode is either "adhoc" or "centralized".
	Mode string `json:"mode" mapstructure:"mode"`

	// CycleTime is the control loop period.
	CycleTime time.Duration `json:"cycle-time" mapstructure:"cycle-time"`

	// MinSafeDuration is how long the ad hoc safety check must hold before access is taken.
	// It has to exceed the worst one-way beacon delay plus processing time plus clock skew.
	MinSafeDuration time.Duration `json:"min-safe-duration" mapstructure:"min-safe-duration"`

	// RequestTimeout is the fixed resend interval of centralized access requests.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`

	// SendTimeout bounds a single acknowledged send to the arbiter.
	SendTimeout time.Duration `json:"send-timeout" mapstructure:"send-timeout"`

	// ExitDwell is how long the vehicle keeps moving after the exit marker.
	ExitDwell time.Duration `json:"exit-dwell" mapstructure:"exit-dwell"`
}

func NewCoordinationOptions() *CoordinationOptions {
	return &CoordinationOptions{
		Mode:            ModeAdHoc,
		CycleTime:       100 * time.Millisecond,
		MinSafeDuration: 3 * time.Second,
		RequestTimeout:  2 * time.Second,
		SendTimeout:     500 * time.Millisecond,
		ExitDwell:       1 * time.Second,
	}
}

func (o *CoordinationOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Mode != ModeAdHoc && o.Mode != ModeCentralized {
		errs = append(errs, fmt.Errorf("coordination.mode must be %q or %q, got %q", ModeAdHoc, ModeCentralized, o.Mode))
	}
	if o.CycleTime <= 0 {
		errs = append(errs, fmt.Errorf("coordination.cycle-time must be positive"))
	}
	if o.MinSafeDuration < o.CycleTime {
		errs = append(errs, fmt.Errorf("coordination.min-safe-duration %s is shorter than one cycle", o.MinSafeDuration))
	}
	if o.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("coordination.request-timeout must be positive"))
	}
	if o.SendTimeout <= 0 || o.SendTimeout >= o.RequestTimeout {
		errs = append(errs, fmt.Errorf("coordination.send-timeout must be positive and below coordination.request-timeout"))
	}
	if o.ExitDwell < 0 {
		errs = append(errs, fmt.Errorf("coordination.exit-dwell must not be negative"))
	}
	return errs
}

func (o *CoordinationOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Mode, join(prefixes, "coordination.mode"), o.Mode, "Access strategy: 'adhoc' (beacon gossip) or 'centralized' (arbiter).")
	fs.DurationVar(&o.CycleTime, join(prefixes, "coordination.cycle-time"), o.CycleTime, "Control loop period.")
	fs.DurationVar(&o.MinSafeDuration, join(prefixes, "coordination.min-safe-duration"), o.MinSafeDuration, "How long the intersection must look clear before an ad hoc vehicle enters.")
	fs.DurationVar(&o.RequestTimeout, join(prefixes, "coordination.request-timeout"), o.RequestTimeout, "Resend interval for unanswered access requests.")
	fs.DurationVar(&o.SendTimeout, join(prefixes, "coordination.send-timeout"), o.SendTimeout, "Upper bound for one acknowledged send to the arbiter.")
	fs.DurationVar(&o.ExitDwell, join(prefixes, "coordination.exit-dwell"), o.ExitDwell, "Time to keep driving past the exit marker before stopping.")
}
