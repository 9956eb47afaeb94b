package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/winson8942-oss/line-drive-bot/cmd/linedrive/modules"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := newApp(modules.ResolveConfigPath(*configPath))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newApp(configPath string) *fx.App {
	return fx.New(
		fx.Supply(modules.ConfigPath(configPath)),
		modules.InfraModule,
		modules.ChannelModule,
		modules.WhitelistModule,
		modules.StorageModule,
		modules.PipelineModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}
