package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from config.yaml when
// present, overridden by TRADE_* environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Data     DataConfig     `mapstructure:"data"`
	Model    ModelConfig    `mapstructure:"model"`
	Limiting LimitingConfig `mapstructure:"limiting"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DataConfig struct {
	Dir     string `mapstructure:"dir"`
	SeedDir string `mapstructure:"seed_dir"`
}

type ModelConfig struct {
	Dir              string        `mapstructure:"dir"`
	TrainingTimeout  time.Duration `mapstructure:"training_timeout"`
	TransactionLimit int           `mapstructure:"transaction_limit"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type LimitingConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration with layered precedence: defaults, then an
// optional config.yaml, then environment variables prefixed TRADE_.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.seed_dir", "")
	v.SetDefault("model.dir", "./data")
	v.SetDefault("model.training_timeout", 30*time.Second)
	v.SetDefault("model.transaction_limit", 5000)
	v.SetDefault("model.min_samples", 30)
	v.SetDefault("limiting.requests_per_second", 20.0)
	v.SetDefault("limiting.burst", 40)
	v.SetDefault("logging.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("TRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside valid range", c.Server.Port)
	}
	if c.Model.TrainingTimeout <= 0 {
		return fmt.Errorf("model.training_timeout must be positive")
	}
	if c.Model.MinSamples < 2 {
		return fmt.Errorf("model.min_samples %d too small to fit anything", c.Model.MinSamples)
	}
	if c.Limiting.RequestsPerSecond <= 0 {
		return fmt.Errorf("limiting.requests_per_second must be positive")
	}
	if c.Limiting.Burst < 1 {
		return fmt.Errorf("limiting.burst must be at least 1")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
