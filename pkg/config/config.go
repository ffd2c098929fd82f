// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Archive backends
const (
	ArchiveFS  = "fs"
	ArchiveGCS = "gcs"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Profiling     ProfilingConfig
	Observability ObservabilityConfig
	Reconcile     ReconcileConfig
	Archive       ArchiveConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the connection string for pgx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type ProfilingConfig struct {
	Enabled bool
	Port    int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	ServiceName    string
}

type ReconcileConfig struct {
	Tolerance    decimal.Decimal
	SynonymsFile string
}

type ArchiveConfig struct {
	Backend string // "fs" or "gcs"
	Dir     string
	Bucket  string
	Prefix  string
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               intVar("SERVER_PORT", 8000),
			RateLimitPerSecond: intVar("RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     intVar("RATE_LIMIT_BURST", 20),
			AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Enabled:  boolVar("DB_ENABLED", true),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     intVar("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "gstreco"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Profiling: ProfilingConfig{
			Enabled: boolVar("PPROF_ENABLED", false),
			Port:    intVar("PPROF_PORT", 6060),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: boolVar("METRICS_ENABLED", true),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "gst-reconciler"),
		},
		Reconcile: ReconcileConfig{
			SynonymsFile: getEnv("RECO_SYNONYMS_FILE", ""),
		},
		Archive: ArchiveConfig{
			Backend: strings.ToLower(getEnv("ARCHIVE_BACKEND", ArchiveFS)),
			Dir:     getEnv("ARCHIVE_DIR", "history"),
			Bucket:  getEnv("GCS_BUCKET", ""),
			Prefix:  getEnv("GCS_PREFIX", "reconciliations"),
		},
	}

	tolerance, err := decimal.NewFromString(getEnv("RECO_TOLERANCE", "1"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("RECO_TOLERANCE: %v", err))
	} else if tolerance.IsNegative() {
		errs = append(errs, "RECO_TOLERANCE: must not be negative")
	}
	cfg.Reconcile.Tolerance = tolerance

	switch cfg.Archive.Backend {
	case ArchiveFS:
	case ArchiveGCS:
		if cfg.Archive.Bucket == "" {
			errs = append(errs, "GCS_BUCKET: required when ARCHIVE_BACKEND=gcs")
		}
	default:
		errs = append(errs, fmt.Sprintf("ARCHIVE_BACKEND: unknown backend %q", cfg.Archive.Backend))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a boolean", key, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
