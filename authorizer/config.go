package authorizer

import (
	"time"

	"github.com/alovak/cardflow-bridge/internal/config"
	"github.com/alovak/cardflow-bridge/internal/queue"
	"github.com/alovak/cardflow-bridge/models"
)

// Config is a configuration for the authorizer application
type Config struct {
	// HTTPAddr serves health checks and metrics.
	HTTPAddr string `yaml:"http_addr"`

	QueueBackend string      `yaml:"queue_backend"`
	Redis        RedisConfig `yaml:"redis"`
	// Queue overrides QueueBackend. Used to run both services in one process.
	Queue queue.Queue `yaml:"-"`

	RequestWorkers int `yaml:"request_workers"`

	// TransactionLimit is the largest amount approved, in major units.
	TransactionLimit string          `yaml:"transaction_limit"`
	TimeoutDelay     config.Duration `yaml:"timeout_delay"`

	// JournalBackend is "mem" or "pg".
	JournalBackend string `yaml:"journal_backend"`
	DBDSN          string `yaml:"db_dsn"`

	// JournalRetention is how long a decision is kept for replay. It only has
	// to cover the redelivery window. Zero keeps decisions forever.
	JournalRetention     config.Duration `yaml:"journal_retention"`
	JournalSweepInterval config.Duration `yaml:"journal_sweep_interval"`

	LocalTimeZone string `yaml:"local_time_zone"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:         "localhost:9090",
		QueueBackend:     "redis",
		Redis:            RedisConfig{Addr: "localhost:6379", Prefix: "cardflow:"},
		RequestWorkers:   8,
		TransactionLimit: DefaultTransactionLimit.String(),
		TimeoutDelay:     config.Duration(DefaultTimeoutDelay),
		JournalBackend:   "mem",
		JournalRetention: config.Duration(10 * time.Minute),
		LocalTimeZone:    "UTC",
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.HTTPAddr = config.Getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.QueueBackend = config.Getenv("QUEUE_BACKEND", cfg.QueueBackend)
	cfg.Redis.Addr = config.Getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = config.Getenv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.RequestWorkers = config.GetenvInt("REQUEST_WORKERS", cfg.RequestWorkers)
	cfg.TransactionLimit = config.Getenv("TRANSACTION_LIMIT", cfg.TransactionLimit)
	cfg.TimeoutDelay = config.Duration(config.GetenvDuration("TIMEOUT_DELAY", cfg.TimeoutDelay.Duration()))
	cfg.JournalBackend = config.Getenv("REPO_BACKEND", cfg.JournalBackend)
	cfg.DBDSN = config.Getenv("DB_DSN", cfg.DBDSN)
	cfg.JournalRetention = config.Duration(config.GetenvDuration("JOURNAL_RETENTION", cfg.JournalRetention.Duration()))
	return cfg, nil
}

func (c *Config) limit() (models.Amount, error) {
	return models.ParseAmount(c.TransactionLimit)
}

func (c *Config) location() *time.Location {
	loc, err := time.LoadLocation(c.LocalTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
