package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/config"
	"github.com/JakeFAU/secavis-relay/internal/pipeline"
	"github.com/JakeFAU/secavis-relay/internal/server"
)

type appKeyType string

const appKey appKeyType = "app"

// service is the pipeline surface used by the commands.
type service interface {
	FetchAndRegister(ctx context.Context, req pipeline.Request) (pipeline.Outcome, error)
	Purge(ctx context.Context) error
}

// relayApp is what subcommands need from the application, so tests can
// inject a fake.
type relayApp interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
	Service() service
}

type serverApp struct {
	*server.App
}

func (a serverApp) Service() service {
	return a.Pipeline()
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfgPath string) (relayApp, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	return serverApp{App: app}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "secavis-relay",
		Short: "Retrieve tax notices from the portal and relay them to the intake service.",
		Long: `secavis-relay drives a headless browser through the tax notice
verification form, records every processed fiscal reference pair so it is
never handled twice, and optionally forwards the result with a capture of the
notice page to the form-intake service.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app, ok := cmd.Context().Value(appKey).(relayApp); ok && app != nil {
				return app.Close(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); SECAVIS_* env vars override it")

	cmd.AddCommand(newServeCmd(), newPurgeCmd(), newLookupCmd())
	return cmd
}

func resolveApp(ctx context.Context) (relayApp, error) {
	app, ok := ctx.Value(appKey).(relayApp)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}
