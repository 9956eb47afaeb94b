package modules

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"go.uber.org/fx"

	dbmigrations "github.com/winson8942-oss/line-drive-bot/db"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/db"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
	"github.com/winson8942-oss/line-drive-bot/internal/storage/gdrive"
	"github.com/winson8942-oss/line-drive-bot/internal/whitelist"
)

var WhitelistModule = fx.Module(
	"whitelist",
	fx.Provide(
		provideWhitelistStore,
		provideWhitelistCache,
	),
)

// ---------------------------------------------------------------------------
// whitelist store by driver
// ---------------------------------------------------------------------------

func provideWhitelistStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, resolver *storage.Resolver, targets []*storage.Target) (whitelist.Store, error) {
	ctx := context.Background()
	switch cfg.Whitelist.Driver {
	case "sqlite":
		store, err := whitelist.OpenSQLite(ctx, cfg.Whitelist.SQLitePath)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return store.Close()
			},
		})
		return store, nil
	case "postgres":
		pool, err := db.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})
		store := whitelist.NewPostgresStore(pool)
		err = prepareWhitelistSchema(ctx, log, store, func() error {
			migrations, err := fs.Sub(dbmigrations.MigrationsFS, "migrations")
			if err != nil {
				return err
			}
			return db.RunMigrate(log, cfg.Postgres, migrations, "up", nil)
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "drive":
		svc, err := gdrive.NewService(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		limiter := storage.NewLimiter(cfg.Drive.RequestsPerSecond)
		for _, t := range targets {
			if t.Kind() == storage.KindGoogle {
				limiter = t.Limiter()
			}
		}
		doc := gdrive.NewDocument(gdrive.New(log, svc), resolver, limiter, cfg.Drive.Root, cfg.Whitelist.DocumentName)
		return whitelist.NewDocumentStore(doc), nil
	case "s3":
		blob, err := whitelist.NewS3Blob(ctx, cfg.S3, cfg.Whitelist.DocumentName)
		if err != nil {
			return nil, err
		}
		return whitelist.NewDocumentStore(blob), nil
	case "memory":
		log.Warn("whitelist uses the in-memory store; enrollments are lost on restart")
		return whitelist.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown whitelist driver %q", cfg.Whitelist.Driver)
	}
}

// prepareWhitelistSchema runs migrate when the whitelist table is missing. Other load
// failures are logged and left to the refresher.
func prepareWhitelistSchema(ctx context.Context, log *slog.Logger, store whitelist.Store, migrate func() error) error {
	_, err := store.Load(ctx)
	switch {
	case err == nil:
		return nil
	case db.IsUndefinedTable(err):
		log.Info("whitelist schema missing, applying migrations")
		return migrate()
	default:
		log.Warn("whitelist store unreachable at startup", slog.Any("error", err))
		return nil
	}
}

func provideWhitelistCache(log *slog.Logger, store whitelist.Store) *whitelist.Cache {
	return whitelist.NewCache(log, store)
}
