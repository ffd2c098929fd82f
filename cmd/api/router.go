package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	c "connectrpc.com/cors"
	"connectrpc.com/validate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/gst-reconciler/internal/domain/reconcile/handler"
	"github.com/FACorreiaa/gst-reconciler/pkg/interceptors"
	"github.com/FACorreiaa/gst-reconciler/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	tracer := otel.GetTracerProvider().Tracer(deps.Config.Observability.ServiceName)

	chain := []connect.Interceptor{
		interceptors.NewRequestIDInterceptor("X-Request-ID"),
		interceptors.NewTracingInterceptor(tracer),
		validate.NewInterceptor(),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, interceptors.NewRateLimitInterceptor(limiter))
	}
	chain = append(chain,
		interceptors.NewRecoveryInterceptor(deps.Logger),
		interceptors.NewLoggingInterceptor(deps.Logger),
		observability.NewMetricsInterceptor(),
	)

	deps.ReconcileHandler.Register(mux, connect.WithInterceptors(chain...))
	deps.Logger.Info("registered Connect RPC service", "service", handler.ServiceName)

	registerUtilityRoutes(mux, deps)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   c.AllowedMethods(),
		AllowedHeaders:   append(c.AllowedHeaders(), "X-Request-ID"),
		ExposedHeaders:   append(c.ExposedHeaders(), "X-Request-ID", "Content-Disposition"),
		AllowCredentials: false,
		MaxAge:           7200,
	})

	return corsHandler.Handler(limitBody(mux))
}

// limitBody caps request bodies slightly above the workbook limit so the
// Connect envelope still fits.
func limitBody(next http.Handler) http.Handler {
	const maxBodyBytes int64 = handler.MaxWorkbookBytes + 1<<20

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.Health(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
					deps.Logger.Error("failed to write health response", slog.Any("error", writeErr))
				}
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health check", "path", "/health")

	mux.HandleFunc("/health/details", func(w http.ResponseWriter, r *http.Request) {
		type status struct {
			Status string `json:"status"`
			Detail string `json:"detail,omitempty"`
		}
		result := map[string]status{
			"db":      {Status: "ok"},
			"archive": {Status: "ok"},
			"ready":   {Status: "ok"},
		}

		if deps.DB == nil {
			result["db"] = status{Status: "warn", Detail: "run index disabled"}
		} else if err := deps.DB.Health(); err != nil {
			result["db"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "db unavailable"}
		}

		if _, err := deps.Archive.List(r.Context()); err != nil {
			result["archive"] = status{Status: "fail", Detail: err.Error()}
			result["ready"] = status{Status: "fail", Detail: "archive unavailable"}
		}

		code := http.StatusOK
		if result["ready"].Status == "fail" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			deps.Logger.Error("failed to encode health details", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered health details", "path", "/health/details")

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", slog.Any("error", err))
		}
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
