package gateway

import (
	"fmt"
	"time"

	"github.com/alovak/cardflow-bridge/internal/config"
	"github.com/alovak/cardflow-bridge/internal/queue"
)

// Config is a configuration for the gateway application
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// QueueBackend is "redis" or "memory". Memory only works when Queue is
	// set, so that the authorizer shares it.
	QueueBackend string      `yaml:"queue_backend"`
	Redis        RedisConfig `yaml:"redis"`
	// Queue overrides QueueBackend. Used to run both services in one process.
	Queue queue.Queue `yaml:"-"`

	ResponseWorkers int `yaml:"response_workers"`

	// WaitTimeout bounds how long a submit call blocks for its response. Zero
	// answers "pending" right away.
	WaitTimeout config.Duration `yaml:"wait_timeout"`
	// MaxWait caps the wait a caller may ask for with ?wait=.
	MaxWait config.Duration `yaml:"max_wait"`

	CorrelationTTL config.Duration `yaml:"correlation_ttl"`
	SweepInterval  config.Duration `yaml:"sweep_interval"`

	// RateLimit is submissions per second; zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	BreakerThreshold uint32          `yaml:"breaker_threshold"`
	BreakerTimeout   config.Duration `yaml:"breaker_timeout"`

	// LocalTimeZone is the IANA zone of DE12/DE13.
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
		HTTPAddr:         "localhost:8080",
		QueueBackend:     "redis",
		Redis:            RedisConfig{Addr: "localhost:6379", Prefix: "cardflow:"},
		ResponseWorkers:  4,
		WaitTimeout:      config.Duration(0),
		MaxWait:          config.Duration(30 * time.Second),
		CorrelationTTL:   config.Duration(2 * time.Minute),
		SweepInterval:    config.Duration(10 * time.Second),
		RateLimit:        0,
		RateBurst:        50,
		BreakerThreshold: 5,
		BreakerTimeout:   config.Duration(10 * time.Second),
		LocalTimeZone:    "UTC",
	}
}

// LoadConfig reads path over the defaults and applies environment overrides.
// An empty path only applies the overrides.
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
	cfg.ResponseWorkers = config.GetenvInt("RESPONSE_WORKERS", cfg.ResponseWorkers)
	cfg.WaitTimeout = config.Duration(config.GetenvDuration("WAIT_TIMEOUT", cfg.WaitTimeout.Duration()))
	cfg.CorrelationTTL = config.Duration(config.GetenvDuration("CORRELATION_TTL", cfg.CorrelationTTL.Duration()))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that no wait can outlive the correlation entry it waits on.
func (c *Config) Validate() error {
	ttl := c.CorrelationTTL.Duration()
	if ttl <= 0 {
		return fmt.Errorf("correlation_ttl must be positive")
	}
	if c.MaxWait.Duration() > ttl/2 {
		return fmt.Errorf("max_wait %s exceeds half of correlation_ttl %s", c.MaxWait.Duration(), ttl)
	}
	if c.WaitTimeout.Duration() > c.MaxWait.Duration() {
		return fmt.Errorf("wait_timeout %s exceeds max_wait %s", c.WaitTimeout.Duration(), c.MaxWait.Duration())
	}
	return nil
}
