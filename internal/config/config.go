package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Inference backends
const (
	BackendDeepFace    = "deepface"
	BackendRekognition = "rekognition"
	BackendMock        = "mock"
)

// Preference stores
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Inference
	InferenceBackend string        `envconfig:"INFERENCE_BACKEND" default:"deepface"`
	InferenceURL     string        `envconfig:"INFERENCE_URL" default:"http://localhost:5005"`
	InferenceTimeout time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"30s"`
	AWSRegion        string        `envconfig:"AWS_REGION" default:"us-east-1"`

	// Sessions
	AutoChecks   bool          `envconfig:"AUTO_CHECKS" default:"false"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	RateLimitMax int           `envconfig:"RATE_LIMIT_MAX" default:"60"`

	// Preferences
	PreferenceStore string `envconfig:"PREFERENCE_STORE" default:"memory"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the combinations envconfig tags cannot express
func (c *Config) Validate() error {
	switch c.InferenceBackend {
	case BackendDeepFace, BackendRekognition, BackendMock:
	default:
		return fmt.Errorf("unknown INFERENCE_BACKEND %q (supported: %s, %s, %s)",
			c.InferenceBackend, BackendDeepFace, BackendRekognition, BackendMock)
	}

	switch c.PreferenceStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PREFERENCE_STORE=%s", StorePostgres)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when PREFERENCE_STORE=%s", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown PREFERENCE_STORE %q (supported: %s, %s, %s)",
			c.PreferenceStore, StoreMemory, StorePostgres, StoreRedis)
	}

	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
