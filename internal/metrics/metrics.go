package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan progress
var (
	ScanCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_scan_cursor",
		Help: "Last source block fully scanned",
	})

	SourceHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_source_head",
		Help: "Latest source block height reported by the node",
	})

	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_scan_duration_seconds",
		Help:    "Time taken to scan one block range, submissions included",
		Buckets: prometheus.DefBuckets,
	})

	BackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_backoff_seconds",
		Help: "Delay before the next scan cycle",
	})
)

// Event and submission throughput
var (
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_total",
			Help: "Source events by processing outcome",
		},
		[]string{"outcome"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_submissions_total",
			Help: "Destination action submissions by status",
		},
		[]string{"status"},
	)
)

// Errors
var (
	CycleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cycle_errors_total",
			Help: "Scan cycles aborted by a transient error, by kind",
		},
		[]string{"kind"},
	)

	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rpc_calls_total",
			Help: "RPC calls by ledger, method and status",
		},
		[]string{"ledger", "method", "status"},
	)
)

// RecordRPCCall records one RPC call outcome
func RecordRPCCall(ledger, method string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RPCCallsTotal.WithLabelValues(ledger, method, status).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
