package app

import (
	"context"
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/sensornode/cmd/cpeer-node/app/options"
	"github.com/autopeer-io/sensornode/pkg/app"
	"github.com/autopeer-io/sensornode/pkg/log"
)

const (
	commandName = "cpeer-node"
	commandDesc = `The Autopeer sensor node samples its accelerometer and thermometer,
publishes telemetry over MQTT and keeps its own firmware up to date from
the firmware repository.`
)

func NewApp() *app.App {
	opts := options.NewNodeAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch an Autopeer sensor node",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.NodeAgentOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync() //nolint:errcheck

		ctx, cancel := context.WithCancel(genericapiserver.SetupSignalContext())
		defer cancel()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent(cancel)
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
