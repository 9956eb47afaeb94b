package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 2*time.Second, cfg.Reply.Debounce.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Whitelist.RefreshInterval.Duration)
	require.NoError(t, Validate(cfg))
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[drive]
mode = "both"
root = "Archive"

[access]
passphrase = "open sesame"
admin_user_id = "Uadmin"
denial_policy = "explicit"

[reply]
debounce = "1500ms"

[whitelist]
driver = "postgres"
refresh_interval = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "both", cfg.Drive.Mode)
	assert.Equal(t, "Archive", cfg.Drive.Root)
	assert.Equal(t, "open sesame", cfg.Access.Passphrase)
	assert.Equal(t, "explicit", cfg.Access.DenialPolicy)
	assert.Equal(t, 1500*time.Millisecond, cfg.Reply.Debounce.Duration)
	assert.Equal(t, 30*time.Second, cfg.Whitelist.RefreshInterval.Duration)
	// untouched sections keep defaults
	assert.Equal(t, "白名單列表", cfg.Access.Commands.List)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	require.NoError(t, Validate(cfg))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[reply]\ndebounce = \"soon\"\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown drive mode", func(c *Config) { c.Drive.Mode = "dropbox" }},
		{"unknown denial policy", func(c *Config) { c.Access.DenialPolicy = "loud" }},
		{"empty passphrase", func(c *Config) { c.Access.Passphrase = "" }},
		{"unknown whitelist driver", func(c *Config) { c.Whitelist.Driver = "redis" }},
		{"zero debounce", func(c *Config) { c.Reply.Debounce = Duration{} }},
		{"drive document without google", func(c *Config) {
			c.Whitelist.Driver = "drive"
			c.Drive.Mode = "onedrive"
		}},
		{"s3 without bucket", func(c *Config) { c.Whitelist.Driver = "s3" }},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
