package server

import (
	"github.com/autopeer-io/crossway/pkg/options"
)

type Config struct {
	ArbiterOptions *options.ArbiterOptions
	HttpOptions    *options.HttpOptions
	GrpcOptions    *options.GrpcOptions
	MqttOptions    *options.MqttOptions
}
