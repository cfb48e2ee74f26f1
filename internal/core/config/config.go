package config

import (
	"github.com/ratewise/trustcore/internal/abuse"
	"github.com/ratewise/trustcore/internal/cache"
	redisclient "github.com/ratewise/trustcore/internal/infra/redis"
	"github.com/ratewise/trustcore/internal/infra/storage/postgres"
	"github.com/ratewise/trustcore/internal/offline"
	"github.com/ratewise/trustcore/internal/ratelimit"
	"github.com/ratewise/trustcore/internal/resilience/breaker"
	"github.com/ratewise/trustcore/internal/resilience/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Retry     retry.Config       `yaml:"retry"`
	Breaker   breaker.Config     `yaml:"circuit_breaker"`
	RateLimit ratelimit.Config   `yaml:"rate_limit"`
	Caches    cache.SetConfig    `yaml:"caches"`
	Abuse     abuse.Config       `yaml:"abuse"`
	Offline   offline.Config     `yaml:"offline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
