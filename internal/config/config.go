// Package config loads application configuration from config.yaml and
// VENUE_-prefixed environment variables, and installs the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/venue-cli/internal/venue"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig        `yaml:"store" mapstructure:"store"`
	Scrape  ScrapeConfig       `yaml:"scrape" mapstructure:"scrape"`
	Weights map[string]float64 `yaml:"weights" mapstructure:"weights"`
	Google  GoogleConfig       `yaml:"google" mapstructure:"google"`
	Server  ServerConfig       `yaml:"server" mapstructure:"server"`
	Log     LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScrapeConfig configures orchestrator pacing and fetch behavior.
type ScrapeConfig struct {
	Source           string `yaml:"source" mapstructure:"source"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelaySecs   int    `yaml:"batch_delay_secs" mapstructure:"batch_delay_secs"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchRetries     int    `yaml:"fetch_retries" mapstructure:"fetch_retries"`
	MergeStrategy    string `yaml:"merge_strategy" mapstructure:"merge_strategy"`
	Plan             string `yaml:"plan" mapstructure:"plan"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("scrape.source", "mock")
	v.SetDefault("scrape.batch_size", 5)
	v.SetDefault("scrape.batch_delay_secs", 2)
	v.SetDefault("scrape.fetch_timeout_secs", 30)
	v.SetDefault("scrape.fetch_retries", 1)
	v.SetDefault("scrape.merge_strategy", "replace")
	v.SetDefault("scrape.plan", "plan.yaml")
	for src, w := range venue.DefaultWeights {
		v.SetDefault("weights."+string(src), w)
	}
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// SourceWeights converts the configured weight map to consolidator form.
func (c *Config) SourceWeights() map[venue.Source]float64 {
	if len(c.Weights) == 0 {
		return nil
	}
	weights := make(map[venue.Source]float64, len(c.Weights))
	for name, w := range c.Weights {
		weights[venue.Source(name)] = w
	}
	return weights
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
