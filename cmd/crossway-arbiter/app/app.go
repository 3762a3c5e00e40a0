package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/crossway/cmd/crossway-arbiter/app/options"
	"github.com/autopeer-io/crossway/pkg/app"
	"github.com/autopeer-io/crossway/pkg/log"
)

const (
	commandName = "crossway-arbiter"
	commandDesc = `The crossway arbiter grants intersection access to vehicles running in
centralized mode. It listens for access requests over MQTT and admits
vehicles one at a time or, with the parallel policy, whenever their lanes
do not conflict with anyone inside.`
)

func NewApp() *app.App {
	opts := options.NewArbiterOptions()
	application := app.NewApp(
		commandName,
		"Launch a crossway intersection arbiter",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ArbiterOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewArbiterServer()
		if err != nil {
			return fmt.Errorf("failed to create arbiter server: %w", err)
		}

		return server.Run(ctx)
	}
}
