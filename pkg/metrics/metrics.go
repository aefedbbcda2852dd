// Package metrics exposes the Prometheus registry the migrator's packages
// register into, and serves it over HTTP.
//
// Metrics are defined next to the code that updates them (client, migrate,
// journal) via promauto; this package only documents and exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer all metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Path is where Serve exposes metrics.
const Path = "/metrics"

// Handler returns an HTTP handler for the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info().Msg("Metrics server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// Metrics Documentation
//
// Call Metrics (pkg/client):
//   - xog_calls_total{client, outcome} (Counter): XOG calls by endpoint and outcome (ok, error)
//   - xog_call_duration_seconds{client} (Histogram): XOG call duration
//   - xog_errors_total{class} (Counter): Errors by class (client, server, network,
//     protocol, unclassified, malformed)
//
// Migration Metrics (pkg/migrate):
//   - xog_migrate_pages_total{object_type, stage} (Counter): Pages read, written, failed
//   - xog_migrate_inflight_writes (Gauge): Destination writes in flight
//
// Journal Metrics (pkg/journal):
//   - xog_journal_entries_total{stage} (Counter): Page entries stored
//   - xog_journal_payload_bytes_total (Counter): Payload bytes stored
//   - xog_journal_errors_total{operation} (Counter): Journal errors (page, state, get)
//
// Example Prometheus Queries:
//
//   # Write failure ratio
//   sum(rate(xog_migrate_pages_total{stage="failed"}[5m])) /
//   sum(rate(xog_migrate_pages_total{stage="read"}[5m]))
//
//   # Window saturation
//   xog_migrate_inflight_writes
//
//   # P95 call latency per endpoint
//   histogram_quantile(0.95, sum by (client, le) (rate(xog_call_duration_seconds_bucket[5m])))
