package uno

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthServer exposes the container health check over HTTP. The App
// registers it when a health check address is configured; it runs as a
// background runner and never keeps the app alive on its own.
type healthServer struct {
	app *App
	log *slog.Logger

	server *http.Server
}

func (h *healthServer) RunConfig() *RunConfig {
	return &RunConfig{
		Wait: false,
	}
}

func (h *healthServer) Init(_ context.Context) error {
	h.server = &http.Server{
		Addr:              h.app.config.HealthCheckAddr,
		Handler:           http.HandlerFunc(h.handle),
		ReadHeaderTimeout: time.Second,
	}

	return nil
}

func (h *healthServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != h.app.config.HealthCheckPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := h.app.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *healthServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		h.server.Shutdown(context.Background()) //nolint:errcheck
	}()

	h.log.Info("health check server running", "addr", h.server.Addr)

	err := h.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
