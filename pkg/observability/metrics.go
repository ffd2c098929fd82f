package observability

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total number of RPC requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gstreco_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gstreco_rpc_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"procedure"},
	)

	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gstreco_rpc_active_requests",
			Help: "Number of active RPC requests",
		},
		[]string{"procedure"},
	)

	// RunsTotal counts reconciliation runs by outcome ("ok", "schema_error", "error")
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gstreco_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gstreco_run_duration_seconds",
			Help:    "Time spent matching one workbook, excluding I/O",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// RecordsReconciled counts books-side records by final status and the
	// phase that matched them ("grouped", "fallback", or "none")
	RecordsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gstreco_records_reconciled_total",
			Help: "Books records processed, by match phase",
		},
		[]string{"phase"},
	)

	CoercedCellsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gstreco_coerced_cells_total",
			Help: "Amount cells that failed to parse and were treated as zero",
		},
	)

	LastMatchPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gstreco_last_match_percent",
			Help: "Books-side match percentage of the most recent run",
		},
	)
)

// RunStats is what a finished run reports to metrics.
type RunStats struct {
	Grouped      int
	Fallback     int
	Unmatched    int
	CoercedCells int
	MatchPercent float64
	Elapsed      time.Duration
}

// ObserveRun records a successful reconciliation run.
func ObserveRun(s RunStats) {
	RunsTotal.WithLabelValues("ok").Inc()
	RunDuration.Observe(s.Elapsed.Seconds())
	RecordsReconciled.WithLabelValues("grouped").Add(float64(s.Grouped))
	RecordsReconciled.WithLabelValues("fallback").Add(float64(s.Fallback))
	RecordsReconciled.WithLabelValues("none").Add(float64(s.Unmatched))
	CoercedCellsTotal.Add(float64(s.CoercedCells))
	LastMatchPercent.Set(s.MatchPercent)
}

// ObserveRunFailure records a run that did not produce a result.
func ObserveRunFailure(schemaError bool) {
	result := "error"
	if schemaError {
		result = "schema_error"
	}
	RunsTotal.WithLabelValues(result).Inc()
}

// NewMetricsInterceptor creates an interceptor that collects Prometheus metrics
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure

			ActiveRequests.WithLabelValues(procedure).Inc()
			defer ActiveRequests.WithLabelValues(procedure).Dec()

			start := time.Now()
			defer func() {
				RequestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			}()

			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					code = connectErr.Code().String()
				} else {
					code = "unknown"
				}
			}
			RequestsTotal.WithLabelValues(procedure, code).Inc()

			return resp, err
		}
	}
}
