// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Output   OutputConfig   `mapstructure:"output"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig controls access to the applicants store.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ScraperConfig governs the pull pipeline.
type ScraperConfig struct {
	BaseURL                string   `mapstructure:"base_url"`
	SurveyPath             string   `mapstructure:"survey_path"`
	UserAgent              string   `mapstructure:"user_agent"`
	TargetRecords          int      `mapstructure:"target_records"`
	PageRetries            int      `mapstructure:"page_retries"`
	MaxConsecutiveFailures int      `mapstructure:"max_consecutive_failures"`
	DelayMs                int      `mapstructure:"delay_ms"`
	TimeoutSeconds         int      `mapstructure:"timeout_seconds"`
	RespectRobots          bool     `mapstructure:"respect_robots"`
	EnrichFields           []string `mapstructure:"enrich_fields"`
}

// OutputConfig sets the intermediate serialization target.
type OutputConfig struct {
	JSONLPath string `mapstructure:"jsonl_path"`
}

// ArchiveConfig toggles raw page archiving.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRADCAFE")
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
	// An empty default registers the key so AutomaticEnv can supply it.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "applicants")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("scraper.base_url", "https://www.thegradcafe.com")
	v.SetDefault("scraper.survey_path", "/survey/index.php")
	v.SetDefault("scraper.user_agent", "gradcafe-pipeline/1.0")
	v.SetDefault("scraper.target_records", 30000)
	v.SetDefault("scraper.page_retries", 2)
	v.SetDefault("scraper.max_consecutive_failures", 3)
	v.SetDefault("scraper.delay_ms", 500)
	v.SetDefault("scraper.timeout_seconds", 15)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.enrich_fields", []string{"gre"})
	v.SetDefault("output.jsonl_path", "data/applicant_data.jsonl")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "data/pages")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if u, err := url.Parse(c.Scraper.BaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("scraper.base_url must be a valid URL")
	}
	if c.Scraper.TargetRecords <= 0 {
		return fmt.Errorf("scraper.target_records must be > 0")
	}
	if c.Scraper.PageRetries < 0 {
		return fmt.Errorf("scraper.page_retries must be >= 0")
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	for _, f := range c.Scraper.EnrichFields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "gre", "degree":
		default:
			return fmt.Errorf("scraper.enrich_fields: unknown field %q", f)
		}
	}
	if c.Archive.Enabled && c.Archive.Dir == "" {
		return fmt.Errorf("archive.dir must be set when archiving is enabled")
	}
	return nil
}

// Delay converts the courtesy delay config into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Scraper.DelayMs) * time.Millisecond
}

// Timeout converts the fetch timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}
