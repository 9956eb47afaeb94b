package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/winson8942-oss/line-drive-bot/internal/boot"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/metrics"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
	"github.com/winson8942-oss/line-drive-bot/internal/storage/gdrive"
	"github.com/winson8942-oss/line-drive-bot/internal/storage/onedrive"
)

var StorageModule = fx.Module(
	"storage",
	fx.Provide(
		provideTargets,
		provideResolver,
		provideRouter,
	),
	fx.Invoke(startRouter),
)

func provideTargets(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) ([]*storage.Target, error) {
	kinds := rc.DriveMode.Kinds()
	targets := make([]*storage.Target, 0, len(kinds))
	for _, kind := range kinds {
		var factory storage.Factory
		switch kind {
		case storage.KindGoogle:
			factory = gdrive.Factory(log, cfg.Google)
		case storage.KindOneDrive:
			factory = onedrive.Factory(log, cfg.OneDrive)
		default:
			return nil, fmt.Errorf("unsupported backend %q", kind)
		}
		targets = append(targets, storage.NewTarget(log, kind, factory, cfg.Drive.RequestsPerSecond))
	}
	return targets, nil
}

// provideResolver is shared by the upload router and the Drive whitelist document.
func provideResolver(log *slog.Logger) *storage.Resolver {
	return storage.NewResolver(log)
}

func provideRouter(log *slog.Logger, targets []*storage.Target, resolver *storage.Resolver, observer *metrics.Observer) *storage.Router {
	return storage.NewRouter(log, targets, resolver, nil, observer)
}

// startRouter initialises the backends eagerly so credential problems show up in the
// startup log; failed backends are retried on first upload.
func startRouter(lc fx.Lifecycle, router *storage.Router) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			router.Init(ctx)
			return nil
		},
	})
}
