// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Browser BrowserConfig `mapstructure:"browser"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs the fallback strategy defaults.
type ScraperConfig struct {
	PreferredMethod string `mapstructure:"preferred_method"`
	EnableFallback  bool   `mapstructure:"enable_fallback"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// HTTPConfig configures the direct fetch adapter.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ProxyConfig configures the rendering proxy service adapter.
type ProxyConfig struct {
	APIKey             string `mapstructure:"api_key"`
	BaseURL            string `mapstructure:"base_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
	PremiumProxy       bool   `mapstructure:"premium_proxy"`
	CountryCode        string `mapstructure:"country_code"`
	DisableJSRendering bool   `mapstructure:"disable_js_rendering"`
}

// BrowserConfig configures the hosted browser service adapter.
type BrowserConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DisableStealth bool   `mapstructure:"disable_stealth"`
	DisableAdBlock bool   `mapstructure:"disable_ad_block"`
}

// WorkerConfig governs batch job execution.
type WorkerConfig struct {
	QueueDepth        int `mapstructure:"queue_depth"`
	DelaySeconds      int `mapstructure:"delay_seconds"`
	ShutdownGraceSecs int `mapstructure:"shutdown_grace_seconds"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory
// stores, which is the single-node development mode.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// StorageConfig selects the snapshot blob backend.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for job completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key Config knows about. Viper only feeds
// Unmarshal from keys it has seen via a default, a config file, or an
// explicit bind, so keys that normally arrive through AutomaticEnv still
// need a zero-value default here or the env value is silently dropped.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("scraper.preferred_method", "http_fetch")
	v.SetDefault("scraper.enable_fallback", true)
	v.SetDefault("scraper.max_retries", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("proxy.api_key", "")
	v.SetDefault("proxy.base_url", "https://app.scrapingbee.com/api/v1")
	v.SetDefault("proxy.timeout_seconds", 90)
	v.SetDefault("proxy.premium_proxy", true)
	v.SetDefault("proxy.country_code", "us")
	v.SetDefault("proxy.disable_js_rendering", false)
	v.SetDefault("browser.api_key", "")
	v.SetDefault("browser.base_url", "https://chrome.browserless.io")
	v.SetDefault("browser.timeout_seconds", 120)
	v.SetDefault("browser.disable_stealth", false)
	v.SetDefault("browser.disable_ad_block", false)
	v.SetDefault("worker.queue_depth", 64)
	v.SetDefault("worker.delay_seconds", 2)
	v.SetDefault("worker.shutdown_grace_seconds", 15)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_lifetime_minutes", 0)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "scrape-jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Scraper.MaxRetries <= 0 {
		return fmt.Errorf("scraper.max_retries must be > 0")
	}
	if c.Worker.QueueDepth <= 0 {
		return fmt.Errorf("worker.queue_depth must be > 0")
	}
	if c.Worker.DelaySeconds < 0 {
		return fmt.Errorf("worker.delay_seconds must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.GCSBucket != "" && c.Storage.LocalDir != "" {
		return fmt.Errorf("storage.gcs_bucket and storage.local_dir are mutually exclusive")
	}
	return nil
}

// PolitenessDelay converts the worker delay config into a duration.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Worker.DelaySeconds) * time.Second
}
