package config // package config loads application configuration from environment variables

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Update modes accepted in TODO_UPDATE_MODE.
const (
	// UpdateReplace writes both columns on every update; an absent
	// description becomes "" and an absent completed flag becomes false.
	UpdateReplace = "replace"
	// UpdateMerge leaves absent fields untouched.
	UpdateMerge = "merge"
)

// Config holds all runtime configuration values of the HTTP service.  Each
// field corresponds to an environment variable.
type Config struct {
	Env             string        `env:"APP_ENV" env-default:"dev"`                // application environment (dev, prod)
	DatabaseURL     string        `env:"DATABASE_URL" env-required:"true"`         // postgres connection target
	BindAddress     string        `env:"BIND_ADDRESS" env-default:"127.0.0.1:3000"` // listen host:port
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`             // logrus level name
	DBMaxConns      int           `env:"DB_MAX_CONNS" env-default:"5"`             // pool ceiling
	UpdateMode      string        `env:"TODO_UPDATE_MODE" env-default:"replace"`   // replace | merge
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`       // graceful shutdown budget
	RabbitMQURL     string        `env:"RABBITMQ_URL" env-default:""`              // empty disables lifecycle events
	EventsQueue     string        `env:"EVENTS_QUEUE" env-default:"todo.events"`   // durable queue for lifecycle events
}

// AuditConfig configures the audit log consumer binary.
type AuditConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL" env-required:"true"`
	EventsQueue string `env:"EVENTS_QUEUE" env-default:"todo.events"`
	LogPath     string `env:"AUDIT_LOG_PATH" env-default:"logs/todo-events.log"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads the service configuration from the environment.  Missing
// required variables and invalid values are reported as errors.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	cfg.UpdateMode = strings.ToLower(strings.TrimSpace(cfg.UpdateMode))
	if cfg.UpdateMode != UpdateReplace && cfg.UpdateMode != UpdateMerge {
		return Config{}, fmt.Errorf("TODO_UPDATE_MODE: want %q or %q, got %q", UpdateReplace, UpdateMerge, cfg.UpdateMode)
	}
	if cfg.DBMaxConns < 1 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", cfg.DBMaxConns)
	}
	return cfg, nil
}

// LoadAudit reads the consumer configuration from the environment.
func LoadAudit() (AuditConfig, error) {
	var cfg AuditConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return AuditConfig{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}
