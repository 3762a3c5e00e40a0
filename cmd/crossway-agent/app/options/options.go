package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/crossway/internal/crossway/agent"
	"github.com/autopeer-io/crossway/pkg/app"
	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/options"
)

type AgentOptions struct {
	VehicleOptions      *options.VehicleOptions      `json:"vehicle" mapstructure:"vehicle"`
	CoordinationOptions *options.CoordinationOptions `json:"coordination" mapstructure:"coordination"`
	BeaconOptions       *options.BeaconOptions       `json:"beacon" mapstructure:"beacon"`
	MqttOptions         *options.MqttOptions         `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions         *options.HttpOptions         `json:"http" mapstructure:"http"`
	JournalOptions      *options.JournalOptions      `json:"journal" mapstructure:"journal"`
	S3Options           *options.S3Options           `json:"s3" mapstructure:"s3"`
	Log                 *log.Options                 `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		VehicleOptions:      options.NewVehicleOptions(),
		CoordinationOptions: options.NewCoordinationOptions(),
		BeaconOptions:       options.NewBeaconOptions(),
		MqttOptions:         options.NewMqttOptions(),
		HttpOptions:         options.NewHttpOptions(),
		JournalOptions:      options.NewJournalOptions(),
		S3Options:           options.NewS3Options(),
		Log:                 log.NewOptions(),
	}
	o.HttpOptions.Addr = "0.0.0.0:8470"

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.VehicleOptions.AddFlags(fss.FlagSet("vehicle"))
	o.CoordinationOptions.AddFlags(fss.FlagSet("coordination"))
	o.BeaconOptions.AddFlags(fss.FlagSet("beacon"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.JournalOptions.AddFlags(fss.FlagSet("journal"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *AgentOptions) Complete() error {
	return o.VehicleOptions.Complete()
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.VehicleOptions.Validate()...)
	errs = append(errs, o.CoordinationOptions.Validate()...)
	if o.CoordinationOptions.Mode == options.ModeAdHoc {
		errs = append(errs, o.BeaconOptions.Validate()...)
	} else {
		errs = append(errs, o.MqttOptions.Validate()...)
	}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.JournalOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		VehicleOptions:      o.VehicleOptions,
		CoordinationOptions: o.CoordinationOptions,
		BeaconOptions:       o.BeaconOptions,
		MqttOptions:         o.MqttOptions,
		HttpOptions:         o.HttpOptions,
		JournalOptions:      o.JournalOptions,
		S3Options:           o.S3Options,
	}, nil
}
