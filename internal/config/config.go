// Package config loads and validates service configuration via Viper.
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
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Browser BrowserConfig `mapstructure:"browser"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs listing discovery behavior.
type CrawlerConfig struct {
	ListingURL         string  `mapstructure:"listing_url"`
	BaseURL            string  `mapstructure:"base_url"`
	MaxScroll          int     `mapstructure:"max_scroll"`
	ScrollDelaySeconds float64 `mapstructure:"scroll_delay_seconds"`
	UserAgent          string  `mapstructure:"user_agent"`
}

// HTTPConfig configures the detail-page fetch stage.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	Concurrency    int `mapstructure:"concurrency"`
	DelayMs        int `mapstructure:"delay_ms"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig names the bucket for poster images. An empty bucket keeps
// posters in memory.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for run-completion notifications.
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
	v.SetEnvPrefix("ARTMAP")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.listing_url", "https://art-map.co.kr/exhibition/new_list.php?cate=&od=2&area=&type=ing")
	v.SetDefault("crawler.base_url", "https://art-map.co.kr")
	v.SetDefault("crawler.max_scroll", 30)
	v.SetDefault("crawler.scroll_delay_seconds", 2.0)
	v.SetDefault("crawler.user_agent", "artmap-bot/0.1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.concurrency", 10)
	v.SetDefault("http.delay_ms", 0)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.ListingURL == "" {
		return fmt.Errorf("crawler.listing_url is required")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if c.Crawler.MaxScroll <= 0 {
		return fmt.Errorf("crawler.max_scroll must be > 0")
	}
	if c.Crawler.ScrollDelaySeconds < 0 {
		return fmt.Errorf("crawler.scroll_delay_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.Concurrency <= 0 {
		return fmt.Errorf("http.concurrency must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// ScrollDelay converts the configured scroll pause to a duration.
func (c Config) ScrollDelay() time.Duration {
	return time.Duration(c.Crawler.ScrollDelaySeconds * float64(time.Second))
}

// FetchTimeout converts the per-request timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FetchDelay converts the politeness pause between detail fetches.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.HTTP.DelayMs) * time.Millisecond
}

// NavTimeout converts the browser navigation timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}
