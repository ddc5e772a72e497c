package impl

import (
	"context"
	"net/http"

	"github.com/linkmond/linkmond/state"
)

// ServeMetrics runs a blocking HTTP server exposing m.Handler() at /metrics
// until ctx is cancelled. cmd/run.go runs this in its own goroutine
// alongside core.Start.
func ServeMetrics(ctx context.Context, addr string, m *state.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
