package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/crossway/internal/crossway/arbiter/server"
	"github.com/autopeer-io/crossway/pkg/app"
	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/options"
)

type ArbiterOptions struct {
	ArbiterOptions *options.ArbiterOptions `json:"arbiter" mapstructure:"arbiter"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	GrpcOptions    *options.GrpcOptions    `json:"grpc" mapstructure:"grpc"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ArbiterOptions)(nil)

func NewArbiterOptions() *ArbiterOptions {
	o := &ArbiterOptions{
		ArbiterOptions: options.NewArbiterOptions(),
		HttpOptions:    options.NewHttpOptions(),
		GrpcOptions:    options.NewGrpcOptions(),
		MqttOptions:    options.NewMqttOptions(),
		Log:            log.NewOptions(),
	}

	return o
}

func (o *ArbiterOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.ArbiterOptions.AddFlags(fss.FlagSet("arbiter"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ArbiterOptions) Complete() error {
	return nil
}

func (o *ArbiterOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.ArbiterOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ArbiterOptions) Config() (*server.Config, error) {
	return &server.Config{
		ArbiterOptions: o.ArbiterOptions,
		HttpOptions:    o.HttpOptions,
		GrpcOptions:    o.GrpcOptions,
		MqttOptions:    o.MqttOptions,
	}, nil
}
