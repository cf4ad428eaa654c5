package cartsync

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment configuration for wiring a facade against the
// shipped providers and the NATS relay.
type Config struct {
	RedisAddr     string `env:"CARTSYNC_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"CARTSYNC_REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"CARTSYNC_REDIS_DB" envDefault:"0"`

	PostgresDSN string `env:"CARTSYNC_POSTGRES_DSN" envDefault:""`

	NATSURL       string `env:"CARTSYNC_NATS_URL" envDefault:"nats://localhost:4222"`
	SubjectPrefix string `env:"CARTSYNC_SUBJECT_PREFIX" envDefault:"cart.facade"`

	// CartTTL bounds how long provider-side cart documents live.
	CartTTL time.Duration `env:"CARTSYNC_CART_TTL" envDefault:"168h"`

	// TaskTimeout bounds the execution time of each serialized task.
	TaskTimeout time.Duration `env:"CARTSYNC_TASK_TIMEOUT" envDefault:"30s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load cartsync config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("invalid task timeout: %s", c.TaskTimeout)
	}
	if c.CartTTL <= 0 {
		return fmt.Errorf("invalid cart ttl: %s", c.CartTTL)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid redis db: %d", c.RedisDB)
	}
	return nil
}
