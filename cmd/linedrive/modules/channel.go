package modules

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/channel/adapters/line"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Provide(
		provideLineAdapter,
		func(a *line.Adapter) channel.EventParser { return a },
		func(a *line.Adapter) channel.Notifier { return a },
		func(a *line.Adapter) channel.ContentFetcher { return a },
		func(a *line.Adapter) channel.Directory { return a },
	),
)

func provideLineAdapter(log *slog.Logger, cfg config.Config) (*line.Adapter, error) {
	return line.NewAdapter(log, cfg.Line)
}
