// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":3000"
	DefaultDriveMode       = "google"
	DefaultRootFolder      = "LINE-bot"
	DefaultPassphrase      = "解鎖備份"
	DefaultDenialPolicy    = "silent"
	DefaultWhitelistDriver = "sqlite"
	DefaultSQLitePath      = "data/whitelist.db"
	DefaultDocumentName    = "whitelist.json"
	DefaultRefresh         = 5 * time.Minute
	DefaultDebounce        = 2 * time.Second
	DefaultHandleTTL       = 50 * time.Second
	DefaultTimezone        = "Asia/Taipei"
	DefaultMaxBytes        = 300 << 20
	DefaultConcurrency     = 8
	DefaultDedupSize       = 1024
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "linedrive"
	DefaultPGSSLMode       = "disable"
	DefaultAPITokenTTL     = 24 * time.Hour
)

// Duration decodes TOML strings such as "2s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Line      LineConfig      `toml:"line"`
	Drive     DriveConfig     `toml:"drive"`
	Google    GoogleConfig    `toml:"google"`
	OneDrive  OneDriveConfig  `toml:"onedrive"`
	Access    AccessConfig    `toml:"access"`
	Whitelist WhitelistConfig `toml:"whitelist"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Reply     ReplyConfig     `toml:"reply"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	AdminAPI  AdminAPIConfig  `toml:"admin_api"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

// LineConfig holds the messaging channel credentials.
type LineConfig struct {
	ChannelSecret string `toml:"channel_secret"`
	ChannelToken  string `toml:"channel_token"`
}

// DriveConfig selects which storage backends receive uploads and the archive root folder name.
type DriveConfig struct {
	Mode string `toml:"mode" validate:"oneof=google onedrive both"`
	Root string `toml:"root" validate:"required"`
	// RequestsPerSecond throttles calls against each backend; 0 disables throttling.
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gte=0"`
}

// GoogleConfig holds the OAuth client secret and token JSON documents for Drive.
type GoogleConfig struct {
	ClientSecretJSON string `toml:"client_secret_json"`
	TokenJSON        string `toml:"token_json"`
}

// OneDriveConfig holds the Microsoft identity platform refresh-token credentials.
type OneDriveConfig struct {
	TenantID     string `toml:"tenant_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	BaseURL      string `toml:"base_url" validate:"omitempty,url"`
}

// AccessConfig holds the whitelist gate policy.
type AccessConfig struct {
	Passphrase            string         `toml:"passphrase" validate:"required"`
	AdminUserID           string         `toml:"admin_user_id"`
	DenialPolicy          string         `toml:"denial_policy" validate:"oneof=silent explicit"`
	AdminCommandsInGroups bool           `toml:"admin_commands_in_groups"`
	Commands              CommandsConfig `toml:"commands"`
}

// CommandsConfig holds the admin command keywords.
type CommandsConfig struct {
	List   string `toml:"list" validate:"required"`
	Add    string `toml:"add" validate:"required"`
	Remove string `toml:"remove" validate:"required"`
	All    string `toml:"all" validate:"required"`
}

// WhitelistConfig selects the durable whitelist store.
type WhitelistConfig struct {
	Driver          string   `toml:"driver" validate:"oneof=sqlite postgres drive s3 memory"`
	RefreshInterval Duration `toml:"refresh_interval"`
	SQLitePath      string   `toml:"sqlite_path"`
	DocumentName    string   `toml:"document_name"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// S3Config holds the bucket that stores the whitelist document when driver is "s3".
type S3Config struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Key       string `toml:"key"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PathStyle bool   `toml:"path_style"`
}

// ReplyConfig holds acknowledgment batching settings.
type ReplyConfig struct {
	Debounce     Duration `toml:"debounce"`
	HandleTTL    Duration `toml:"handle_ttl"`
	MessagesPath string   `toml:"messages_path"`
}

// PipelineConfig holds ingestion settings.
type PipelineConfig struct {
	StagingDir       string `toml:"staging_dir"`
	MaxBytes         int64  `toml:"max_bytes" validate:"gt=0"`
	Timezone         string `toml:"timezone" validate:"required"`
	MonthBuckets     bool   `toml:"month_buckets"`
	ProcessingNotice bool   `toml:"processing_notice"`
	Concurrency      int    `toml:"concurrency" validate:"gt=0"`
	DedupSize        int    `toml:"dedup_size" validate:"gt=0"`
}

// AdminAPIConfig enables the whitelist HTTP API when a JWT secret is set.
type AdminAPIConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Drive: DriveConfig{
			Mode:              DefaultDriveMode,
			Root:              DefaultRootFolder,
			RequestsPerSecond: 10,
		},
		Access: AccessConfig{
			Passphrase:            DefaultPassphrase,
			DenialPolicy:          DefaultDenialPolicy,
			AdminCommandsInGroups: true,
			Commands: CommandsConfig{
				List:   "白名單列表",
				Add:    "加入",
				Remove: "踢出",
				All:    "全部",
			},
		},
		Whitelist: WhitelistConfig{
			Driver:          DefaultWhitelistDriver,
			RefreshInterval: Duration{DefaultRefresh},
			SQLitePath:      DefaultSQLitePath,
			DocumentName:    DefaultDocumentName,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		S3: S3Config{
			Key: DefaultDocumentName,
		},
		Reply: ReplyConfig{
			Debounce:  Duration{DefaultDebounce},
			HandleTTL: Duration{DefaultHandleTTL},
		},
		Pipeline: PipelineConfig{
			MaxBytes:    DefaultMaxBytes,
			Timezone:    DefaultTimezone,
			Concurrency: DefaultConcurrency,
			DedupSize:   DefaultDedupSize,
		},
		AdminAPI: AdminAPIConfig{
			TokenTTL: Duration{DefaultAPITokenTTL},
		},
	}
}

// Load reads and parses the TOML config file at path on top of Defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field requirements.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Whitelist.RefreshInterval.Duration <= 0 {
		return fmt.Errorf("whitelist.refresh_interval must be positive")
	}
	if cfg.Reply.Debounce.Duration <= 0 {
		return fmt.Errorf("reply.debounce must be positive")
	}
	if cfg.Whitelist.Driver == "drive" && cfg.Drive.Mode == "onedrive" {
		return fmt.Errorf("whitelist driver %q requires drive.mode google or both", cfg.Whitelist.Driver)
	}
	if cfg.Whitelist.Driver == "s3" && strings.TrimSpace(cfg.S3.Bucket) == "" {
		return fmt.Errorf("s3.bucket is required for whitelist driver s3")
	}
	return nil
}
