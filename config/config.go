package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL"`
	Postgres    Postgres
	Redis       Redis
	Kiwoom      Kiwoom
	Backend     Backend
	HTTP        HTTP
	Jobs        Jobs
	Telegram    Telegram
	GoogleDrive GoogleDrive
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT" envDefault:"5432"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME" envDefault:"300"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"60"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"migrations"`
}

type Redis struct {
	Host            string        `env:"REDIS_HOST"`
	Port            int           `env:"REDIS_PORT" envDefault:"6379"`
	Password        string        `env:"REDIS_PASSWORD"`
	DB              int           `env:"REDIS_DB" envDefault:"0"`
	StatsExpiration time.Duration `env:"REDIS_STATS_EXPIRATION" envDefault:"5m"`
}

// Kiwoom holds both credential profiles plus generic overrides. The active
// profile is selected by KIWOOM_MODE and resolved via ResolveProfile.
type Kiwoom struct {
	Mode    string        `env:"KIWOOM_MODE" envDefault:"paper"`
	Debug   bool          `env:"KIWOOM_API_DEBUG"`
	Timeout time.Duration `env:"KIWOOM_API_TIMEOUT" envDefault:"20s"`

	AppKey    string `env:"KIWOOM_APP_KEY"`
	AppSecret string `env:"KIWOOM_APP_SECRET"`
	HostURL   string `env:"KIWOOM_HOST_URL"`
	BaseURL   string `env:"KIWOOM_BASE_URL"`

	Real  KiwoomProfile `envPrefix:"KIWOOM_REAL_"`
	Paper KiwoomProfile `envPrefix:"KIWOOM_PAPER_"`
}

type KiwoomProfile struct {
	AppKey    string `env:"APP_KEY"`
	AppSecret string `env:"APP_SECRET"`
	HostURL   string `env:"HOST_URL"`
}

// Profile is the resolved set of source credentials for the active mode.
type Profile struct {
	Mode      string
	AppKey    string
	AppSecret string
	HostURL   string
}

type Backend struct {
	BaseURL   string `env:"BACKEND_API_BASE" envDefault:"http://localhost:8000"`
	BridgeKey string `env:"BRIDGE_API_KEY" envDefault:"dev-bridge-key"`
}

type HTTP struct {
	Port string `env:"HTTP_PORT" envDefault:"8000"`
}

type Jobs struct {
	SyncInterval time.Duration `env:"SYNC_JOB_INTERVAL"`
}

type Telegram struct {
	Token  string `env:"TELEGRAM_TOKEN"`
	ChatID int64  `env:"TELEGRAM_CHAT_ID"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE"`
	Retention       time.Duration `env:"GOOGLE_DRIVE_RETENTION" envDefault:"720h"`
}

// ConfigError reports missing or invalid environment configuration by the
// concrete variable names so operators know exactly what to set.
type ConfigError struct {
	MissingVars []string
	msg         string
}

func (e *ConfigError) Error() string { return e.msg }

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}

// ResolveProfile picks the credential profile for the configured mode.
// Generic KIWOOM_APP_KEY / KIWOOM_APP_SECRET / KIWOOM_HOST_URL (or
// KIWOOM_BASE_URL) take precedence over the mode-specific variables.
// A missing value is reported by its mode-specific variable name.
func (k Kiwoom) ResolveProfile() (Profile, error) {
	mode := strings.ToLower(strings.TrimSpace(k.Mode))
	if mode == "" {
		mode = "paper"
	}
	if mode != "real" && mode != "paper" {
		return Profile{}, &ConfigError{msg: "invalid KIWOOM_MODE, expected 'real' or 'paper'"}
	}

	profile := k.Paper
	prefix := "KIWOOM_PAPER"
	if mode == "real" {
		profile = k.Real
		prefix = "KIWOOM_REAL"
	}

	appKey := firstNonEmpty(k.AppKey, profile.AppKey)
	appSecret := firstNonEmpty(k.AppSecret, profile.AppSecret)
	hostURL := firstNonEmpty(k.HostURL, k.BaseURL, profile.HostURL)

	var missing []string
	if appKey == "" {
		missing = append(missing, prefix+"_APP_KEY")
	}
	if appSecret == "" {
		missing = append(missing, prefix+"_APP_SECRET")
	}
	if hostURL == "" {
		missing = append(missing, prefix+"_HOST_URL")
	}

	if len(missing) > 0 {
		return Profile{}, &ConfigError{
			MissingVars: missing,
			msg: fmt.Sprintf(
				"missing Kiwoom configuration for mode=%s: %s",
				mode, strings.Join(missing, ", "),
			),
		}
	}

	return Profile{
		Mode:      mode,
		AppKey:    appKey,
		AppSecret: appSecret,
		HostURL:   strings.TrimRight(hostURL, "/"),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
