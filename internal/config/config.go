package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/everstacklabs/compass/internal/discover"
	"github.com/everstacklabs/compass/internal/source/keystone"
)

// Config holds all configuration for compass.
type Config struct {
	Source              string                 `mapstructure:"source"`
	CatalogFile         string                 `mapstructure:"catalog_file"`
	Auth                keystone.Credentials   `mapstructure:"auth"`
	Region              string                 `mapstructure:"region"`
	Interface           string                 `mapstructure:"interface"`
	ServiceNameFallback bool                   `mapstructure:"service_name_fallback"`
	CacheDir            string                 `mapstructure:"cache_dir"`
	CacheTTL            string                 `mapstructure:"cache_ttl"`
	NoCache             bool                   `mapstructure:"no_cache"`
	RateLimit           float64                `mapstructure:"rate_limit"`
	Timeout             string                 `mapstructure:"timeout"`
	Discovery           discover.StatusOptions `mapstructure:"discovery"`
	VersionHacks        []discover.VersionHack `mapstructure:"version_hacks"`
	Snapshot            SnapshotConfig         `mapstructure:"snapshot"`
	GitHub              GitHubConfig           `mapstructure:"github"`
	Serve               ServeConfig            `mapstructure:"serve"`
	LogLevel            string                 `mapstructure:"log_level"`
}

// SnapshotConfig controls the drift snapshot pipeline.
type SnapshotConfig struct {
	Path   string `mapstructure:"path"`
	DryRun bool   `mapstructure:"dry_run"`
}

// GitHubConfig holds GitHub-related settings.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	Owner      string `mapstructure:"owner"`
	Repo       string `mapstructure:"repo"`
	BaseBranch string `mapstructure:"base_branch"`
}

// ServeConfig holds HTTP resolver settings.
type ServeConfig struct {
	Addr            string `mapstructure:"addr"`
	RefreshInterval string `mapstructure:"refresh_interval"`
	StaleDuration   string `mapstructure:"stale_duration"`
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("source", "keystone")
	v.SetDefault("catalog_file", "")
	v.SetDefault("interface", "public")
	v.SetDefault("service_name_fallback", true)
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("no_cache", false)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("timeout", "30s")
	v.SetDefault("discovery.allow_experimental", false)
	v.SetDefault("discovery.allow_deprecated", true)
	v.SetDefault("discovery.allow_unknown", false)
	v.SetDefault("version_hacks", DefaultVersionHacks())
	v.SetDefault("snapshot.path", "./catalog-snapshot")
	v.SetDefault("snapshot.dry_run", false)
	v.SetDefault("github.base_branch", "main")
	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.refresh_interval", "15m")
	v.SetDefault("serve.stale_duration", "30s")
	v.SetDefault("log_level", "info")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("compass")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/compass")
	}

	// Environment variables
	v.SetEnvPrefix("COMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Standard OpenStack client variables
	_ = v.BindEnv("auth.auth_url", "OS_AUTH_URL")
	_ = v.BindEnv("auth.username", "OS_USERNAME")
	_ = v.BindEnv("auth.password", "OS_PASSWORD")
	_ = v.BindEnv("auth.project_name", "OS_PROJECT_NAME", "OS_TENANT_NAME")
	_ = v.BindEnv("auth.project_id", "OS_PROJECT_ID", "OS_TENANT_ID")
	_ = v.BindEnv("auth.user_domain_name", "OS_USER_DOMAIN_NAME")
	_ = v.BindEnv("auth.project_domain_name", "OS_PROJECT_DOMAIN_NAME")
	_ = v.BindEnv("auth.identity_api_version", "OS_IDENTITY_API_VERSION")
	_ = v.BindEnv("region", "OS_REGION_NAME", "COMPASS_REGION")
	_ = v.BindEnv("interface", "OS_INTERFACE", "COMPASS_INTERFACE")
	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("catalog_file", "COMPASS_CATALOG_FILE")
	_ = v.BindEnv("snapshot.path", "COMPASS_SNAPSHOT_PATH")
	_ = v.BindEnv("serve.addr", "COMPASS_SERVE_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Resolve snapshot path to absolute
	if cfg.Snapshot.Path != "" && !filepath.IsAbs(cfg.Snapshot.Path) {
		abs, err := filepath.Abs(cfg.Snapshot.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving snapshot path: %w", err)
		}
		cfg.Snapshot.Path = abs
	}

	return &cfg, nil
}

// DefaultVersionHacks returns the built-in hack table in config form.
func DefaultVersionHacks() []map[string]string {
	var out []map[string]string
	for _, h := range discover.DefaultVersionHacks() {
		out = append(out, map[string]string{
			"service_type": h.ServiceType,
			"pattern":      h.Pattern,
			"replacement":  h.Replacement,
		})
	}
	return out
}

func (c *Config) validate() error {
	switch c.Source {
	case "keystone", "file":
	default:
		return fmt.Errorf("invalid source %q: must be keystone or file", c.Source)
	}
	for name, d := range map[string]string{
		"cache_ttl":              c.CacheTTL,
		"timeout":                c.Timeout,
		"serve.refresh_interval": c.Serve.RefreshInterval,
		"serve.stale_duration":   c.Serve.StaleDuration,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, d, err)
		}
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("invalid rate_limit %v: must be positive", c.RateLimit)
	}
	return nil
}

// Duration parses a duration setting that validate already checked.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/compass-cache"
	}
	return filepath.Join(home, ".cache", "compass")
}
