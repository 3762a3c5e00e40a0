package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/crossway/cmd/crossway-agent/app/options"
	"github.com/autopeer-io/crossway/pkg/app"
	"github.com/autopeer-io/crossway/pkg/log"
)

const (
	commandName = "crossway-agent"
	commandDesc = `The crossway agent runs on each vehicle. It drives the vehicle through
an unsignalized intersection, negotiating access either ad hoc with
neighboring vehicles over multicast beacons or with a crossway-arbiter
over MQTT.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch a crossway vehicle agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
