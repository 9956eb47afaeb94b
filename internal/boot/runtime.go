// Package boot provides runtime configuration derived from config plus environment overrides.
package boot

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for minimal container images

	"github.com/winson8942-oss/line-drive-bot/internal/config"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

// RuntimeConfig holds parsed runtime settings that need more than a field lookup.
type RuntimeConfig struct {
	ServerAddr string
	DriveMode  storage.Mode
	Location   *time.Location
}

// Getenv reports the value of an environment variable and whether it was set.
type Getenv func(name string) (string, bool)

// ApplyEnv overlays the environment variables used by existing deployments onto cfg.
// Unset variables are ignored.
func ApplyEnv(cfg *config.Config, getenv Getenv) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if getenv == nil {
		getenv = os.LookupEnv
	}
	strVars := []struct {
		env string
		dst *string
	}{
		{"LINE_CHANNEL_SECRET", &cfg.Line.ChannelSecret},
		{"LINE_ACCESS_TOKEN", &cfg.Line.ChannelToken},
		{"LINE_CHANNEL_ACCESS_TOKEN", &cfg.Line.ChannelToken},
		{"DRIVE_ROOT", &cfg.Drive.Root},
		{"ACCESS_KEYWORD", &cfg.Access.Passphrase},
		{"ADMIN_USER_ID", &cfg.Access.AdminUserID},
		{"DENIAL_POLICY", &cfg.Access.DenialPolicy},
		{"GOOGLE_CLIENT_SECRET_JSON", &cfg.Google.ClientSecretJSON},
		{"GOOGLE_OAUTH_TOKEN_JSON", &cfg.Google.TokenJSON},
		{"ONEDRIVE_TENANT_ID", &cfg.OneDrive.TenantID},
		{"ONEDRIVE_CLIENT_ID", &cfg.OneDrive.ClientID},
		{"ONEDRIVE_CLIENT_SECRET", &cfg.OneDrive.ClientSecret},
		{"ONEDRIVE_REFRESH_TOKEN", &cfg.OneDrive.RefreshToken},
		{"WHITELIST_DRIVER", &cfg.Whitelist.Driver},
		{"ADMIN_API_JWT_SECRET", &cfg.AdminAPI.JWTSecret},
		{"HTTP_ADDR", &cfg.Server.Addr},
	}
	for _, sv := range strVars {
		if v, ok := getenv(sv.env); ok && strings.TrimSpace(v) != "" {
			*sv.dst = strings.TrimSpace(v)
		}
	}
	if v, ok := getenv("DRIVE_MODE"); ok && strings.TrimSpace(v) != "" {
		cfg.Drive.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	// PORT is what most PaaS runtimes inject; HTTP_ADDR wins when both are set.
	if _, hasAddr := getenv("HTTP_ADDR"); !hasAddr {
		if v, ok := getenv("PORT"); ok && strings.TrimSpace(v) != "" {
			port, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("PORT: %w", err)
			}
			cfg.Server.Addr = ":" + strconv.Itoa(port)
		}
	}
	return nil
}

// ProvideRuntimeConfig validates cfg and derives RuntimeConfig.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, err := storage.ParseMode(cfg.Drive.Mode)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pipeline.timezone: %w", err)
	}
	return &RuntimeConfig{
		ServerAddr: cfg.Server.Addr,
		DriveMode:  mode,
		Location:   loc,
	}, nil
}
