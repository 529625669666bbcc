package uno

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New()

// Config holds the app-level settings. Zero values are replaced with the
// defaults below by NewApp; the chainable setters on App override them.
type Config struct {
	InitTimeout        time.Duration `validate:"gt=0"`
	HealthCheckTimeout time.Duration `validate:"gt=0"`
	ShutdownTimeout    time.Duration `validate:"gt=0"`

	// HealthCheckAddr is the listen address of the optional health endpoint.
	// Empty disables the endpoint.
	HealthCheckAddr string `validate:"omitempty,hostname_port"`

	// HealthCheckPath is the URL path the health endpoint answers on.
	HealthCheckPath string `validate:"startswith=/"`
}

const (
	defaultInitTimeout        = 10 * time.Second
	defaultHealthCheckTimeout = 5 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHealthCheckPath    = "/health"
)

func defaultAppConfig() *Config {
	return &Config{
		InitTimeout:        defaultInitTimeout,
		HealthCheckTimeout: defaultHealthCheckTimeout,
		ShutdownTimeout:    defaultShutdownTimeout,
		HealthCheckPath:    defaultHealthCheckPath,
	}
}

func (c *Config) Validate(_ context.Context) error {
	return configValidator.Struct(c)
}
