// Package config provides centralized configuration shared by cmd/bot and
// cmd/donationctl. Values are layered: defaults, then an optional YAML file
// named by DONATIONBOT_CONFIG, then environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileEnvVar names the environment variable holding the optional YAML path.
const FileEnvVar = "DONATIONBOT_CONFIG"

// --------------------------------------------------------------------------
// Table names, matching migrations.
// --------------------------------------------------------------------------

const (
	SeasonsTable = "seasons"
	PlayersTable = "players"
	ClansTable   = "clans"
)

// --------------------------------------------------------------------------
// Config struct
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string        `koanf:"database_url"`
	DBPoolMinConns int           `koanf:"db_pool_min_conns"`
	DBPoolMaxConns int           `koanf:"db_pool_max_conns"`
	DBPoolMaxLife  time.Duration `koanf:"db_pool_max_life"`
	AutoMigrate    bool          `koanf:"auto_migrate"`

	// API server
	APIHost     string `koanf:"api_host"`
	APIPort     int    `koanf:"api_port"`
	Environment string `koanf:"environment"` // development, staging, production
	LogLevel    string `koanf:"log_level"`

	// CORS
	CORSAllowOrigins []string `koanf:"cors_allow_origins"`

	// Inbound rate limiting
	RateLimitEnabled  bool          `koanf:"rate_limit_enabled"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// Clash of Clans API
	CoCAPIToken          string  `koanf:"coc_api_token"`
	CoCBaseURL           string  `koanf:"coc_base_url"`
	CoCRequestsPerSecond float64 `koanf:"coc_requests_per_second"`
	CoCMaxRetries        int     `koanf:"coc_max_retries"`
	FetchConcurrency     int     `koanf:"fetch_concurrency"`

	// Discord
	DiscordToken   string `koanf:"discord_token"`
	DiscordGuildID string `koanf:"discord_guild_id"` // empty registers commands globally

	// Seasonal capture
	CaptureGroupSize      int  `koanf:"capture_group_size"`
	CaptureWorkers        int  `koanf:"capture_workers"`
	CaptureIgnoreNotFound bool `koanf:"capture_ignore_not_found"`

	// Schedules (cron syntax, evaluated in UTC)
	RolloverCron string `koanf:"rollover_cron"`
	ClanSyncCron string `koanf:"clan_sync_cron"`

	// Cache
	CacheEnabled bool `koanf:"cache_enabled"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() *Config {
	return &Config{
		DBPoolMinConns: 2,
		DBPoolMaxConns: 10,
		DBPoolMaxLife:  30 * time.Minute,
		AutoMigrate:    true,

		APIHost:     "0.0.0.0",
		APIPort:     8000,
		Environment: "development",
		LogLevel:    "info",

		CORSAllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,

		CoCBaseURL:           "https://api.clashofclans.com/v1",
		CoCRequestsPerSecond: 30,
		CoCMaxRetries:        3,
		FetchConcurrency:     10,

		CaptureGroupSize: 100,
		CaptureWorkers:   4,

		RolloverCron: "10 5 * * *",
		ClanSyncCron: "*/15 * * * *",

		CacheEnabled: true,
	}
}

// Load reads configuration with precedence (low -> high):
//  1. Default()
//  2. YAML file if DONATIONBOT_CONFIG is set
//  3. environment variables (DATABASE_URL -> database_url)
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(FileEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, unmarshalConf(cfg)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// unmarshalConf decodes comma separated env values into slices that replace
// the defaults rather than merging with them.
func unmarshalConf(out *Config) koanf.UnmarshalConf {
	return koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			TagName:          "koanf",
			Result:           out,
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	}
}

// Validate rejects configurations that cannot run anything useful.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must be set"))
	}
	if c.CaptureGroupSize < 1 {
		errs = append(errs, fmt.Errorf("capture_group_size must be positive, got %d", c.CaptureGroupSize))
	}
	if c.CaptureWorkers < 1 {
		errs = append(errs, fmt.Errorf("capture_workers must be positive, got %d", c.CaptureWorkers))
	}
	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch_concurrency must be positive, got %d", c.FetchConcurrency))
	}
	if c.CoCRequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("coc_requests_per_second must be positive, got %v", c.CoCRequestsPerSecond))
	}
	return errors.Join(errs...)
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the process logger the way both commands expect it.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
