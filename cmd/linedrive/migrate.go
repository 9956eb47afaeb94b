package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/winson8942-oss/line-drive-bot/cmd/linedrive/modules"
	dbmigrations "github.com/winson8942-oss/line-drive-bot/db"
	"github.com/winson8942-oss/line-drive-bot/internal/db"
	"github.com/winson8942-oss/line-drive-bot/internal/logger"
)

func newMigrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <" + strings.Join(db.Commands, "|") + "> [version]",
		Short:     "Manage the PostgreSQL whitelist schema",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: db.Commands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := modules.LoadConfig(modules.ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			migrations, err := fs.Sub(dbmigrations.MigrationsFS, "migrations")
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}
