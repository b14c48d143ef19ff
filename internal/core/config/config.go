package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/adserve-lab/chargecounter/internal/core/limits"
)

// Config represents the top-level application config plus the loaded limit source.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Limits   LimitsConfig   `koanf:"limits"`
	Charging ChargingConfig `koanf:"charging"`
	Rollover RolloverConfig `koanf:"rollover"`
	Audit    AuditConfig    `koanf:"audit"`

	// LimitSource is populated by Load after parsing limit files.
	LimitSource *limits.FileSystemSource `koanf:"-"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type StoreConfig struct {
	Type          string `koanf:"type"` // memory | postgres | redis
	DSN           string `koanf:"dsn"`
	MaxOpenConns  int    `koanf:"max_open_conns"`
	MaxIdleConns  int    `koanf:"max_idle_conns"`
	AutoMigrate   bool   `koanf:"auto_migrate"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

type LimitsConfig struct {
	ConfigDir     string `koanf:"config_dir"`
	RequireLimits bool   `koanf:"require_limits"`
}

type ChargingConfig struct {
	CoupleGroupBudget bool `koanf:"couple_group_budget"`
	MaxCostScale      int  `koanf:"max_cost_scale"`
	// ReplayTTL bounds how long settled request ids are remembered.
	ReplayTTL string `koanf:"replay_ttl"`
}

type RolloverConfig struct {
	Enabled      bool   `koanf:"enabled"`
	TickInterval string `koanf:"tick_interval"`
	GracePeriod  string `koanf:"grace_period"`
}

type AuditConfig struct {
	Recorder string `koanf:"recorder"` // log | postgres
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Store.Type {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn is required for the postgres store")
		}
		if c.Store.MaxOpenConns <= 0 {
			return fmt.Errorf("store.max_open_conns must be > 0")
		}
		if c.Store.MaxIdleConns <= 0 {
			return fmt.Errorf("store.max_idle_conns must be > 0")
		}
	case "redis":
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return fmt.Errorf("store.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unsupported store.type %q", c.Store.Type)
	}

	if strings.TrimSpace(c.Limits.ConfigDir) == "" {
		return fmt.Errorf("limits.config_dir is required")
	}

	if c.Charging.MaxCostScale <= 0 {
		return fmt.Errorf("charging.max_cost_scale must be > 0")
	}
	if _, err := time.ParseDuration(c.Charging.ReplayTTL); err != nil {
		return fmt.Errorf("invalid charging.replay_ttl %q: %w", c.Charging.ReplayTTL, err)
	}

	if _, err := time.ParseDuration(c.Rollover.TickInterval); err != nil {
		return fmt.Errorf("invalid rollover.tick_interval %q: %w", c.Rollover.TickInterval, err)
	}
	if _, err := time.ParseDuration(c.Rollover.GracePeriod); err != nil {
		return fmt.Errorf("invalid rollover.grace_period %q: %w", c.Rollover.GracePeriod, err)
	}

	if c.Audit.Recorder != "log" && c.Audit.Recorder != "postgres" {
		return fmt.Errorf("unsupported audit.recorder %q (must be log or postgres)", c.Audit.Recorder)
	}
	if c.Audit.Recorder == "postgres" && c.Store.Type != "postgres" {
		return fmt.Errorf("audit.recorder postgres requires store.type postgres")
	}

	return nil
}

// Load parses config from file + env, validates it, then loads and validates limit files.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                  8080,
		"server.host":                  "0.0.0.0",
		"server.mode":                  "release",
		"store.type":                   "memory",
		"store.dsn":                    "",
		"store.max_open_conns":         25,
		"store.max_idle_conns":         25,
		"store.auto_migrate":           true,
		"store.redis_addr":             "",
		"store.redis_password":         "",
		"store.redis_db":               0,
		"limits.config_dir":            "./config/limits",
		"limits.require_limits":        true,
		"charging.couple_group_budget": true,
		"charging.max_cost_scale":      4,
		"charging.replay_ttl":          "10m",
		"rollover.enabled":             true,
		"rollover.tick_interval":       "1m",
		"rollover.grace_period":        "30s",
		"audit.recorder":               "log",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("CHARGECOUNTER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHARGECOUNTER_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := limits.NewFileSystemSource(cfg.Limits.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits: %w", err)
	}
	if cfg.Limits.RequireLimits && src.Count() == 0 {
		return nil, fmt.Errorf("no limit entries found in %q", cfg.Limits.ConfigDir)
	}
	cfg.LimitSource = src

	return &cfg, nil
}

// ReplayTTLDuration returns the parsed replay window. Call after Validate.
func (c ChargingConfig) ReplayTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReplayTTL)
	return d
}

// TickIntervalDuration returns the parsed scheduler interval. Call after Validate.
func (c RolloverConfig) TickIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.TickInterval)
	return d
}

// GracePeriodDuration returns the parsed grace period. Call after Validate.
func (c RolloverConfig) GracePeriodDuration() time.Duration {
	d, _ := time.ParseDuration(c.GracePeriod)
	return d
}
