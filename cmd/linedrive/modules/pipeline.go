package modules

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/winson8942-oss/line-drive-bot/internal/access"
	"github.com/winson8942-oss/line-drive-bot/internal/boot"
	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/ingest"
	"github.com/winson8942-oss/line-drive-bot/internal/media"
	"github.com/winson8942-oss/line-drive-bot/internal/metrics"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

var PipelineModule = fx.Module(
	"pipeline",
	fx.Provide(
		provideGate,
		provideRefresher,
		provideStager,
		provideBatcher,
		providePipeline,
	),
	fx.Invoke(startGate, startRefresher),
)

// ---------------------------------------------------------------------------
// access gate
// ---------------------------------------------------------------------------

func provideGate(log *slog.Logger, cfg config.Config, cache *whitelist.Cache, directory channel.Directory, notifier channel.Notifier, catalog *reply.Catalog, observer *metrics.Observer) *access.Gate {
	a := cfg.Access
	return access.NewGate(log, access.Config{
		Passphrase:            a.Passphrase,
		AdminUserID:           a.AdminUserID,
		DenialPolicy:          access.DenialPolicy(a.DenialPolicy),
		AdminCommandsInGroups: a.AdminCommandsInGroups,
		Commands: access.Commands{
			List:   a.Commands.List,
			Add:    a.Commands.Add,
			Remove: a.Commands.Remove,
			All:    a.Commands.All,
		},
	}, cache, directory, notifier, catalog, observer)
}

// startGate loads the whitelist. A store outage leaves the gate degraded and the refresher
// recovers it.
func startGate(lc fx.Lifecycle, gate *access.Gate) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			gate.Init(ctx)
			return nil
		},
	})
}

func provideRefresher(log *slog.Logger, cfg config.Config, gate *access.Gate) *whitelist.Refresher {
	return whitelist.NewRefresher(log, gate, cfg.Whitelist.RefreshInterval.Duration)
}

func startRefresher(lc fx.Lifecycle, refresher *whitelist.Refresher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return refresher.Start()
		},
		OnStop: func(ctx context.Context) error {
			return refresher.Stop(ctx)
		},
	})
}

// ---------------------------------------------------------------------------
// ingestion
// ---------------------------------------------------------------------------

func provideStager(log *slog.Logger, cfg config.Config) (*media.Stager, error) {
	return media.NewStager(log, cfg.Pipeline.StagingDir, cfg.Pipeline.MaxBytes)
}

func provideBatcher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, notifier channel.Notifier, catalog *reply.Catalog, observer *metrics.Observer) *reply.Batcher {
	b := reply.NewBatcher(log, notifier, catalog, reply.Options{
		Window:    cfg.Reply.Debounce.Duration,
		HandleTTL: cfg.Reply.HandleTTL.Duration,
		Observer:  observer,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return b.Close(ctx)
		},
	})
	return b
}

type pipelineParams struct {
	fx.In

	Logger        *slog.Logger
	Config        config.Config
	RuntimeConfig *boot.RuntimeConfig
	Gate          *access.Gate
	Fetcher       channel.ContentFetcher
	Directory     channel.Directory
	Notifier      channel.Notifier
	Stager        *media.Stager
	Router        *storage.Router
	Batcher       *reply.Batcher
	Catalog       *reply.Catalog
	Metrics       *metrics.Observer
}

func providePipeline(p pipelineParams) (*ingest.Pipeline, error) {
	pc := p.Config.Pipeline
	return ingest.NewPipeline(p.Logger, ingest.Deps{
		Gate:      p.Gate,
		Fetcher:   p.Fetcher,
		Directory: p.Directory,
		Notifier:  p.Notifier,
		Stager:    p.Stager,
		Uploader:  p.Router,
		Batcher:   p.Batcher,
		Catalog:   p.Catalog,
		Observer:  p.Metrics,
	}, ingest.Options{
		Root:             p.Config.Drive.Root,
		Location:         p.RuntimeConfig.Location,
		MonthBuckets:     pc.MonthBuckets,
		ProcessingNotice: pc.ProcessingNotice,
		Concurrency:      pc.Concurrency,
		DedupSize:        pc.DedupSize,
	})
}
