package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // "development" or "production"
	LogLevel    string `env:"LOG_LEVEL" envDefault:"INFO"`
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`

	// Persistent store
	StorageType   string `env:"STORAGE_TYPE" envDefault:"memory"`
	DataDir       string `env:"DATA_DIR"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	// Audit index, disabled when URL is empty
	ElasticsearchURL      string `env:"ELASTICSEARCH_URL"`
	ElasticsearchUsername string `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchPrefix   string `env:"ELASTICSEARCH_INDEX_PREFIX" envDefault:"wagerline"`

	Ledger LedgerConfig
	Bias   BiasConfig
	Rounds RoundsConfig
	Crash  CrashConfig
}

// LedgerConfig tunes the balance engine
type LedgerConfig struct {
	// Wager requirement imposed per unit of GIFT/BONUS credit
	RolloverMultiplier float64       `env:"ROLLOVER_MULTIPLIER" envDefault:"5.0"`
	MaxAttempts        int           `env:"LEDGER_MAX_ATTEMPTS" envDefault:"5"`
	InitialBackoff     time.Duration `env:"LEDGER_INITIAL_BACKOFF" envDefault:"10ms"`
	MaxBackoff         time.Duration `env:"LEDGER_MAX_BACKOFF" envDefault:"400ms"`
}

// BiasConfig holds the house-edge policy constants
type BiasConfig struct {
	Disabled                  bool    `env:"BIAS_DISABLED" envDefault:"false"`
	LargeBetRatio             float64 `env:"BIAS_LARGE_BET_RATIO" envDefault:"0.6"`
	LargeBetProbability       float64 `env:"BIAS_LARGE_BET_PROBABILITY" envDefault:"0.95"`
	BaseProbability           float64 `env:"BIAS_BASE_PROBABILITY" envDefault:"0.15"`
	NearCompletionRatio       float64 `env:"BIAS_NEAR_COMPLETION_RATIO" envDefault:"0.10"`
	NearCompletionProbability float64 `env:"BIAS_NEAR_COMPLETION_PROBABILITY" envDefault:"0.70"`
}

// RoundsConfig holds shared-game timings
type RoundsConfig struct {
	TickInterval       time.Duration `env:"ROUND_TICK_INTERVAL" envDefault:"1s"`
	WinGoBetting       time.Duration `env:"ROUND_WINGO_BETTING" envDefault:"30s"`
	DragonTigerBetting time.Duration `env:"ROUND_DRAGON_TIGER_BETTING" envDefault:"15s"`
	AviatorBetting     time.Duration `env:"ROUND_AVIATOR_BETTING" envDefault:"10s"`
	RevealDelay        time.Duration `env:"ROUND_REVEAL_DELAY" envDefault:"3s"`
	HistorySize        int           `env:"ROUND_HISTORY_SIZE" envDefault:"20"`
}

// CrashConfig holds the crash-curve constants
type CrashConfig struct {
	HouseConstant float64 `env:"CRASH_HOUSE_CONSTANT" envDefault:"0.99"`
	MaxMultiplier float64 `env:"CRASH_MAX_MULTIPLIER" envDefault:"1000"`
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Only return error if file exists but couldn't be loaded
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if cfg.DataDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.DataDir = filepath.Join(wd, "data")
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageType == StorageSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// validate checks that the configuration is usable
func (c *Config) validate() error {
	switch c.StorageType {
	case StorageMemory, StorageSQLite, StorageRedis:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	if c.Ledger.RolloverMultiplier < 0 {
		return fmt.Errorf("ROLLOVER_MULTIPLIER must not be negative")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1")
	}
	for name, p := range map[string]float64{
		"BIAS_LARGE_BET_PROBABILITY":       c.Bias.LargeBetProbability,
		"BIAS_BASE_PROBABILITY":            c.Bias.BaseProbability,
		"BIAS_NEAR_COMPLETION_PROBABILITY": c.Bias.NearCompletionProbability,
		"BIAS_NEAR_COMPLETION_RATIO":       c.Bias.NearCompletionRatio,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if c.Rounds.TickInterval <= 0 {
		return fmt.Errorf("ROUND_TICK_INTERVAL must be positive")
	}
	if c.Rounds.HistorySize < 1 {
		return fmt.Errorf("ROUND_HISTORY_SIZE must be at least 1")
	}
	if c.Crash.HouseConstant <= 0 || c.Crash.HouseConstant > 1 {
		return fmt.Errorf("CRASH_HOUSE_CONSTANT must be within (0,1]")
	}
	if c.Crash.MaxMultiplier < 1 {
		return fmt.Errorf("CRASH_MAX_MULTIPLIER must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SQLitePath returns the database file used by the sqlite backend
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "wagerline.db")
}
