// Package config loads codescout settings from defaults, an optional YAML
// file, CODESCOUT_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/codescout/internal/analyzer"
	"github.com/FranksOps/codescout/internal/fingerprint"
	"github.com/FranksOps/codescout/pkg/proxy"
	"github.com/FranksOps/codescout/pkg/useragent"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CODESCOUT_AUDIT_DRIVER.
const EnvPrefix = "CODESCOUT"

// Audit drivers.
const (
	AuditMemory   = "memory"
	AuditJSON     = "json"
	AuditCSV      = "csv"
	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
)

// AuditConfig selects where fetch records are written.
type AuditConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Config is the fully resolved configuration.
type Config struct {
	MaxResults        int                 `mapstructure:"max_results"`
	SpokenLanguage    string              `mapstructure:"spoken_language"`
	Concurrency       int                 `mapstructure:"concurrency"`
	SearchTimeout     time.Duration       `mapstructure:"search_timeout"`
	PageTimeout       time.Duration       `mapstructure:"page_timeout"`
	Fingerprint       string              `mapstructure:"fingerprint"`
	SearchEndpoint    string              `mapstructure:"search_endpoint"`
	UserAgents        []string            `mapstructure:"user_agents"`
	UserAgentStrategy string              `mapstructure:"user_agent_strategy"`
	Proxies           []string            `mapstructure:"proxies"`
	ProxyFile         string              `mapstructure:"proxy_file"`
	ProxyMaxFailures  int                 `mapstructure:"proxy_max_failures"`
	ProxyCooldown     time.Duration       `mapstructure:"proxy_cooldown"`
	Audit             AuditConfig         `mapstructure:"audit"`
	MetricsAddr       string              `mapstructure:"metrics_addr"`
	LogLevel          string              `mapstructure:"log_level"`
	Languages         map[string][]string `mapstructure:"languages"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("max_results", 10)
	v.SetDefault("spoken_language", "en")
	v.SetDefault("concurrency", 4)
	v.SetDefault("search_timeout", 30*time.Second)
	v.SetDefault("page_timeout", 10*time.Second)
	v.SetDefault("fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("search_endpoint", "https://www.bing.com/search")
	v.SetDefault("user_agent_strategy", string(useragent.StrategyFixed))
	v.SetDefault("proxies", []string{})
	v.SetDefault("proxy_file", "")
	v.SetDefault("proxy_max_failures", 3)
	v.SetDefault("proxy_cooldown", 5*time.Minute)
	v.SetDefault("audit.driver", AuditMemory)
	v.SetDefault("audit.dsn", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "warn")
}

// Load resolves the configuration held by v. If path is non-empty the file
// must exist and parse. Flags should already be bound to v.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.MaxResults < 1 {
		return fmt.Errorf("max_results must be at least 1, got %d", c.MaxResults)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.SearchTimeout <= 0 || c.PageTimeout <= 0 {
		return errors.New("search_timeout and page_timeout must be positive")
	}
	if c.ProxyMaxFailures < 0 || c.ProxyCooldown < 0 {
		return errors.New("proxy_max_failures and proxy_cooldown must not be negative")
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		return err
	}
	if _, err := useragent.ParseStrategy(c.UserAgentStrategy); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Audit.Driver {
	case AuditMemory:
	case AuditJSON, AuditCSV, AuditSQLite, AuditPostgres:
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for driver %q", c.Audit.Driver)
		}
	default:
		return fmt.Errorf("unknown audit driver %q", c.Audit.Driver)
	}
	for lang, keywords := range c.Languages {
		if len(keywords) == 0 {
			return fmt.Errorf("language %q has no keywords", lang)
		}
		for _, kw := range keywords {
			if kw == "" {
				return fmt.Errorf("language %q has an empty keyword", lang)
			}
		}
	}
	return nil
}

// Heuristics returns the built-in keyword table extended by the configured
// languages.
func (c *Config) Heuristics() analyzer.Heuristics {
	return analyzer.DefaultHeuristics().With(c.Languages)
}

// ProxyPool builds the proxy pool from proxies and proxy_file. It returns
// nil when no proxy is configured.
func (c *Config) ProxyPool() (*proxy.Pool, error) {
	if len(c.Proxies) == 0 && c.ProxyFile == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{
		MaxFailures: c.ProxyMaxFailures,
		Cooldown:    c.ProxyCooldown,
	})
	if err := pool.Add(c.Proxies...); err != nil {
		return nil, err
	}
	if c.ProxyFile != "" {
		if err := pool.LoadFile(c.ProxyFile); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// ClientTimeout is the hard per-request limit of the shared HTTP client. It
// must not undercut either stage's own deadline.
func (c *Config) ClientTimeout() time.Duration {
	return max(c.SearchTimeout, c.PageTimeout)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
