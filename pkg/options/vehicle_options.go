package options

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VehicleOptions)(nil)

// VehicleOptions identify the vehicle and the path it takes through the intersection.
type VehicleOptions struct {
	// ID is the vehicle identity. Falls back to $CROSSWAY_VEHICLE_ID, then the hostname.
	ID string `json:"id" mapstructure:"id"`

	EntryPoint int `json:"entry-point" mapstructure:"entry-point"`
	ExitPoint  int `json:"exit-point" mapstructure:"exit-point"`

	// ConflictFile is an optional YAML conflict table. Empty selects the built-in four-way table.
	ConflictFile string `json:"conflict-file" mapstructure:"conflict-file"`

	// Script is an optional detector script ("approaching@0s,entering@2s,...") used
	// when no external detector feeds the agent.
	Script string `json:"script" mapstructure:"script"`

	// ScriptRepeat restarts the script after this long. Zero plays it once.
	ScriptRepeat time.Duration `json:"script-repeat" mapstructure:"script-repeat"`
}

func NewVehicleOptions() *VehicleOptions {
	return &VehicleOptions{}
}

// Complete fills in the vehicle ID from the environment.
func (o *VehicleOptions) Complete() error {
	if o.ID != "" {
		return nil
	}
	if env := os.Getenv("CROSSWAY_VEHICLE_ID"); env != "" {
		o.ID = env
		return nil
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("vehicle.id not set and hostname unavailable: %w", err)
	}
	o.ID = host
	return nil
}

func (o *VehicleOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ID == "" {
		errs = append(errs, errors.New("vehicle.id is required"))
	}
	if o.EntryPoint < 0 || o.ExitPoint < 0 {
		errs = append(errs, errors.New("vehicle.entry-point and vehicle.exit-point must not be negative"))
	}
	if o.ScriptRepeat < 0 {
		errs = append(errs, errors.New("vehicle.script-repeat must not be negative"))
	}
	return errs
}

func (o *VehicleOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, join(prefixes, "vehicle.id"), o.ID, "Vehicle identity. Defaults to $CROSSWAY_VEHICLE_ID or the hostname.")
	fs.IntVar(&o.EntryPoint, join(prefixes, "vehicle.entry-point"), o.EntryPoint, "Entry point ID of this vehicle's lane.")
	fs.IntVar(&o.ExitPoint, join(prefixes, "vehicle.exit-point"), o.ExitPoint, "Exit point ID of this vehicle's lane.")
	fs.StringVar(&o.ConflictFile, join(prefixes, "vehicle.conflict-file"), o.ConflictFile, "YAML conflict table. Empty uses the built-in four-way intersection.")
	fs.StringVar(&o.Script, join(prefixes, "vehicle.script"), o.Script, "Scripted detector events, e.g. 'approaching@0s,entering@2s,exiting@6s'.")
	fs.DurationVar(&o.ScriptRepeat, join(prefixes, "vehicle.script-repeat"), o.ScriptRepeat, "Replay the detector script with this period. Zero plays it once.")
}
