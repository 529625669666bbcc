package uno

import (
	"context"
)

// Initer is an optional interface a service can implement.
type Initer interface {
	// Init is called after the factory has built the instance, before it is
	// handed to anyone. If it returns an error the instance is discarded and
	// the resolution or startup fails.
	Init(ctx context.Context) error
}

// Shutdowner is an optional interface a service can implement.
type Shutdowner interface {
	// Shutdown is called when the owning container or scope is disposing the
	// instance. An error is collected and reported, but never stops the
	// disposal of the remaining services. Called at most once per instance.
	Shutdown(ctx context.Context) error
}

// HealthChecker is an optional interface a service can implement.
type HealthChecker interface {
	// HealthCheck is called when the container health is probed. An error
	// marks the whole container unhealthy.
	HealthCheck(ctx context.Context) error
}

// Runner is an optional interface a service can implement. The App runs every
// singleton Runner in a background goroutine after startup. Can be one-off or
// long-running.
type Runner interface {
	// Run receives a context that is cancelled when the app shuts down or
	// when all awaited runners have finished.
	Run(ctx context.Context) error
}

// RunConfigurer lets a Runner choose how it is supervised. Without it the
// runner is awaited.
type RunConfigurer interface {
	RunConfig() *RunConfig
}

// RunConfig controls runner supervision.
type RunConfig struct {
	// Wait marks the runner as awaited: the app keeps running until every
	// awaited runner returns, then cancels the background ones. Background
	// runners never keep the app alive on their own.
	Wait bool
}

var defaultRunConfig = &RunConfig{Wait: true}

func runConfigOf(instance any) *RunConfig {
	if c, ok := instance.(RunConfigurer); ok {
		if rc := c.RunConfig(); rc != nil {
			return rc
		}
	}

	return defaultRunConfig
}

// shutdownInstance disposes one instance: the descriptor's BeforeShutdown
// hook first, then the Shutdown method when the instance has one. A hook
// error skips the method.
func shutdownInstance(ctx context.Context, d *ServiceDescriptor, instance any) error {
	if d.beforeShutdown != nil {
		if err := d.beforeShutdown(ctx, instance); err != nil {
			return err
		}
	}

	if shutdowner, ok := instance.(Shutdowner); ok {
		return shutdowner.Shutdown(ctx)
	}

	return nil
}
