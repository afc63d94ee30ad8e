package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slabworks/gradepipe/internal/store"
	"github.com/slabworks/gradepipe/pkg/remotestore"
)

// Config holds the full application configuration.
type Config struct {
	Store     store.Config       `yaml:"store" mapstructure:"store"`
	Analysis  AnalysisConfig     `yaml:"analysis" mapstructure:"analysis"`
	Remote    remotestore.Config `yaml:"remote" mapstructure:"remote"`
	Scheduler SchedulerConfig    `yaml:"scheduler" mapstructure:"scheduler"`
	Persist   PersistConfig      `yaml:"persist" mapstructure:"persist"`
	Server    ServerConfig       `yaml:"server" mapstructure:"server"`
	Log       LogConfig          `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig holds analysis service settings.
type AnalysisConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// SchedulerConfig tunes dispatch and per-call resilience.
type SchedulerConfig struct {
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	Retry         RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker       BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// RetryConfig tunes the retry executor.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig tunes the analysis service circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PersistConfig tunes the persistence gateway.
type PersistConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// ServerConfig configures the observation API server.
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
	v.SetConfigName("gradepipe")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRADEPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secret-bearing keys default to empty so the env lookup is
	// registered even without a config file.
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "gradepipe.db")
	v.SetDefault("store.conn_string", "")
	v.SetDefault("analysis.key", "")
	v.SetDefault("analysis.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("analysis.requests_per_minute", 30)
	v.SetDefault("remote.addr", "")
	v.SetDefault("remote.user", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.path", "")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("scheduler.sweep_interval", "15s")
	v.SetDefault("scheduler.retry.max_attempts", 8)
	v.SetDefault("scheduler.retry.initial_backoff_ms", 500)
	v.SetDefault("scheduler.retry.max_backoff_ms", 30000)
	v.SetDefault("scheduler.retry.multiplier", 2.0)
	v.SetDefault("scheduler.retry.jitter_fraction", 0.25)
	v.SetDefault("scheduler.breaker.failure_threshold", 5)
	v.SetDefault("scheduler.breaker.reset_timeout_secs", 60)
	v.SetDefault("persist.debounce", "4s")
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
