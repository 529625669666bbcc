package uno

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"
)

type ctxKey int

const resolverCtxKey ctxKey = iota

// ContextWithResolver returns a copy of ctx carrying r. FromContext
// retrieves it. The App stores its container this way in every context it
// hands to runners and factories; request middleware usually stores a scope.
func ContextWithResolver(ctx context.Context, r Resolver) context.Context {
	return context.WithValue(ctx, resolverCtxKey, r)
}

// FromContext retrieves the Resolver stored in ctx. Panics if ctx does not
// carry one.
func FromContext(ctx context.Context) Resolver {
	return ctx.Value(resolverCtxKey).(Resolver)
}

// App ties a container to the process lifecycle: eager startup with a
// timeout, runner supervision, signal handling and graceful shutdown.
type App struct {
	config    *Config
	container *Container

	// stopChan is used to initiate the shutdown of the app.
	stopChan chan error

	// shutdownChan is used to wait for the graceful shutdown of the app.
	shutdownChan chan error

	runners *runGroup

	started bool

	log *slog.Logger
}

// NewApp creates an App around the given container. A nil container gets
// replaced with a fresh one.
func NewApp(container *Container) *App {
	if container == nil {
		container = NewContainer()
	}

	return &App{
		config:       defaultAppConfig(),
		container:    container,
		stopChan:     make(chan error, 1),
		shutdownChan: make(chan error, 1),
		runners:      newRunGroup(),
		log:          slog.New(slog.DiscardHandler),
	}
}

// Container returns the container the app runs.
func (a *App) Container() *Container {
	return a.container
}

// InitTimeout sets the timeout for starting the services.
func (a *App) InitTimeout(t time.Duration) *App {
	a.config.InitTimeout = t
	return a
}

// HealthCheckTimeout sets the timeout for the health check of the services.
func (a *App) HealthCheckTimeout(t time.Duration) *App {
	a.config.HealthCheckTimeout = t
	return a
}

// ShutdownTimeout sets the timeout for the graceful shutdown.
func (a *App) ShutdownTimeout(t time.Duration) *App {
	a.config.ShutdownTimeout = t
	return a
}

// RunHealthCheckServer enables the HTTP health endpoint on the given address
// and path. The endpoint runs as a background runner.
func (a *App) RunHealthCheckServer(addr, path string) *App {
	a.config.HealthCheckAddr = addr
	a.config.HealthCheckPath = path
	return a
}

// InjectSlog registers the app logger under the *slog.Logger key, so
// services can declare a *slog.Logger field or dependency.
func (a *App) InjectSlog() *App {
	_ = RegisterTransient(a.container, func(context.Context, Resolver) (*slog.Logger, error) {
		return a.log, nil
	})
	return a
}

// SetLogger sets the logger used by the app and its container.
func (a *App) SetLogger(log *slog.Logger) *App {
	a.log = log
	a.container.SetLogger(log)
	return a
}

// HealthCheck probes the container within the configured timeout.
func (a *App) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.HealthCheckTimeout)
	defer cancel()

	return a.container.HealthCheck(ctx)
}

// Shutdown schedules the graceful shutdown of the app. If any errs are
// given, Run returns them. Only the first call is effective, later calls
// are ignored.
func (a *App) Shutdown(errs ...error) {
	err := errors.Join(errs...)

	select {
	case a.stopChan <- err:
	default:
		if err != nil {
			a.log.Warn("shutdown already scheduled", "error", err)
		}
	}
}

// Run starts the container, launches the runners and blocks until a given
// signal arrives, the context is cancelled, a runner fails, or every awaited
// runner finishes. It then shuts the container down gracefully and returns
// whatever errors startup, runners and shutdown produced.
//
// At least one constructed singleton must be an awaited runner, otherwise
// Run returns ErrNoRunners. Use Start and Stop directly for setups that have
// nothing to supervise.
func (a *App) Run(ctx context.Context, signals ...os.Signal) error {
	ctx = ContextWithResolver(ctx, a.container)

	if err := a.Start(ctx); err != nil {
		return err
	}

	go a.listenToStopSignals(ctx, signals)
	go func() {
		a.Shutdown(a.runRunners(ctx))
	}()

	a.log.Info("app running", "services", a.container.Keys())

	return <-a.shutdownChan
}

// Start validates the configuration, configures the container and eagerly
// constructs all singletons within the init timeout. It also arms the
// shutdown sequence Run and Shutdown rely on. Calling it twice is a no-op.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}

	ctx = ContextWithResolver(ctx, a.container)

	if a.config.HealthCheckAddr != "" {
		if err := a.registerHealthServer(); err != nil {
			return err
		}
	}

	go a.awaitShutdown(ctx)

	if err := a.validate(ctx); err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, a.config.InitTimeout)
	defer cancel()

	if err := a.container.Start(initCtx); err != nil {
		a.log.Error("startup failed", "error", err)

		a.Shutdown(err)
		return err
	}

	a.started = true

	return nil
}

// awaitShutdown waits for the stop signal, cancels the runners, drains them
// within the shutdown window and tears the container down.
func (a *App) awaitShutdown(ctx context.Context) {
	err := <-a.stopChan

	a.log.Info("shutting down", "timeout", a.config.ShutdownTimeout)

	// The triggering ctx may already be cancelled, shutdown still gets its
	// full window.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.ShutdownTimeout)
	defer cancel()

	a.runners.Stop()

	drained := make(chan struct{})
	go func() {
		_ = a.runners.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-shutdownCtx.Done():
		err = errors.Join(err, fmt.Errorf("runners did not stop in time: %w", shutdownCtx.Err()))
	}

	a.shutdownChan <- errors.Join(err, a.container.Stop(shutdownCtx))
}

func (a *App) runRunners(ctx context.Context) error {
	entries := a.container.runners()

	awaited := 0
	for _, entry := range entries {
		if runConfigOf(entry.instance).Wait {
			awaited++
		}
	}

	if awaited == 0 {
		return ErrNoRunners
	}

	for _, entry := range entries {
		runner := entry.instance.(Runner)
		cfg := runConfigOf(entry.instance)
		key := entry.desc.key
		log := a.log.With("service", key)

		a.runners.Go(ctx, cfg.Wait, func(ctx context.Context) error {
			log.Debug("runner started", "awaited", cfg.Wait)

			err := runner.Run(ctx)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			if err != nil {
				log.Warn("runner exited with error", "error", err)
				return fmt.Errorf("%s: %w", key, err)
			}

			log.Debug("runner finished")
			return nil
		})
	}

	return a.runners.Wait()
}

func (a *App) validate(ctx context.Context) error {
	return errors.Join(a.config.Validate(ctx), a.container.Validate(ctx))
}

func (a *App) registerHealthServer() error {
	return RegisterSingleton(a.container, func(context.Context, Resolver) (*healthServer, error) {
		return &healthServer{
			app: a,
			log: a.log.With("service", KeyOf[*healthServer]()),
		}, nil
	})
}

func (a *App) listenToStopSignals(ctx context.Context, signals []os.Signal) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		a.Shutdown(ctx.Err())
	case sig := <-sigChan:
		a.log.Info("received signal", "signal", sig.String())

		a.Shutdown()
	}
}
