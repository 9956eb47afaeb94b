package modules

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/winson8942-oss/line-drive-bot/internal/boot"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/logger"
	"github.com/winson8942-oss/line-drive-bot/internal/metrics"
	"github.com/winson8942-oss/line-drive-bot/internal/reply"
)

// ConfigPath is the TOML file the serve command loads.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		metrics.New,
		provideCatalog,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

// ResolveConfigPath prefers the flag value, then CONFIG_PATH, then the default.
func ResolveConfigPath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return config.DefaultConfigPath
}

// LoadConfig reads the TOML file and applies environment overrides.
func LoadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := boot.ApplyEnv(&cfg, nil); err != nil {
		return config.Config{}, fmt.Errorf("apply env: %w", err)
	}
	return cfg, nil
}

func provideConfig(path ConfigPath) (config.Config, error) {
	return LoadConfig(string(path))
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideCatalog(cfg config.Config) (*reply.Catalog, error) {
	if strings.TrimSpace(cfg.Reply.MessagesPath) == "" {
		return reply.DefaultCatalog(), nil
	}
	return reply.LoadCatalog(cfg.Reply.MessagesPath)
}
