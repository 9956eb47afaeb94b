package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/fx"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/boot"
	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/handlers"
	"github.com/winson8942-oss/line-drive-bot/internal/ingest"
	"github.com/winson8942-oss/line-drive-bot/internal/metrics"
	"github.com/winson8942-oss/line-drive-bot/internal/server"
	"github.com/winson8942-oss/line-drive-bot/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideWebhookHandler),
		provideServerHandler(provideMetricsHandler),
		provideWhitelistHandler,
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideWebhookHandler(log *slog.Logger, parser channel.EventParser, pipeline *ingest.Pipeline) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, parser, pipeline)
}

func provideMetricsHandler(observer *metrics.Observer) *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(observer.Handler())
}

func provideWhitelistHandler(log *slog.Logger, gate *access.Gate) *handlers.WhitelistHandler {
	return handlers.NewWhitelistHandler(log, gate)
}

// ---------------------------------------------------------------------------
// server
// ---------------------------------------------------------------------------

type serverParams struct {
	fx.In

	Logger           *slog.Logger
	RuntimeConfig    *boot.RuntimeConfig
	Config           config.Config
	ServerHandlers   []server.Handler `group:"server_handlers"`
	WhitelistHandler *handlers.WhitelistHandler
}

func provideServer(params serverParams) *server.Server {
	all := make([]server.Handler, 0, len(params.ServerHandlers)+1)
	all = append(all, params.ServerHandlers...)
	secret := strings.TrimSpace(params.Config.AdminAPI.JWTSecret)
	if secret != "" {
		all = append(all, params.WhitelistHandler)
	} else {
		params.Logger.Info("admin api disabled: admin_api.jwt_secret is empty")
	}
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, secret, all...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, rc *boot.RuntimeConfig, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting linedrive %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("storage mode", slog.String("mode", string(rc.DriveMode)))
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
