// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, action-token secrets, pipeline deadlines, leaderboard
// projection, live streaming and observability settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Overflow policies accepted by STREAM_OVERFLOW_POLICY.
const (
	OverflowDropOldest = "drop_oldest"
	OverflowDisconnect = "disconnect"
)

// Storage drivers accepted by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TokenConfig holds the action-token signing material.
type TokenConfig struct {
	Secret          string        // TOKEN_SECRET, used to sign and verify
	PreviousSecrets []string      // TOKEN_PREVIOUS_SECRETS, verify only (rotation)
	MaxTTL          time.Duration // TOKEN_MAX_TTL, upper bound for issued tokens
	IssuerAPIKey    string        // ISSUER_API_KEY, guards the internal issuance route
}

// PipelineConfig holds the per-stage deadlines of the score-update pipeline.
type PipelineConfig struct {
	ValidateTimeout time.Duration
	AdmitTimeout    time.Duration
	LedgerTimeout   time.Duration
	LockTimeout     time.Duration
}

// LeaderboardConfig controls the ranked projection and its maintenance.
type LeaderboardConfig struct {
	Window              int           // visible top-K window broadcast to subscribers
	MaxLimit            int           // cap for ?limit on reads
	ProjectorQueue      int           // async upsert queue capacity
	ProjectorMaxRetries int           // bounded retry per entry
	ProjectorBackoff    time.Duration // base backoff between retries
	ReconcileInterval   time.Duration
	ReconcileTolerance  int // mismatches tolerated before a rebuild
	ReconcileWindow     int // top-K compared by the reconciler
	MarkerPruneInterval time.Duration
}

// StreamConfig controls the broadcast hub.
type StreamConfig struct {
	Buffer         int
	OverflowPolicy string // drop_oldest|disconnect
	MaxPerIdentity int
	Heartbeat      time.Duration
}

// KafkaConfig enables mirroring ranking events to a Kafka topic.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // 0 disables; SSE streams need long writes
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	Token       TokenConfig
	Pipeline    PipelineConfig
	Leaderboard LeaderboardConfig
	Stream      StreamConfig
	Kafka       KafkaConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
		DBPath:      getenv("DB_PATH", "leaderboard.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		Token: TokenConfig{
			Secret:          getenv("TOKEN_SECRET", ""),
			PreviousSecrets: splitCSV(getenv("TOKEN_PREVIOUS_SECRETS", "")),
			MaxTTL:          getdur("TOKEN_MAX_TTL", 15*time.Minute),
			IssuerAPIKey:    getenv("ISSUER_API_KEY", ""),
		},

		Pipeline: PipelineConfig{
			ValidateTimeout: getdur("VALIDATE_TIMEOUT", 250*time.Millisecond),
			AdmitTimeout:    getdur("ADMIT_TIMEOUT", 2*time.Second),
			LedgerTimeout:   getdur("LEDGER_TIMEOUT", 5*time.Second),
			LockTimeout:     getdur("LOCK_TIMEOUT", 2*time.Second),
		},

		Leaderboard: LeaderboardConfig{
			Window:              getint("LEADERBOARD_WINDOW", 10),
			MaxLimit:            getint("LEADERBOARD_MAX_LIMIT", 100),
			ProjectorQueue:      getint("PROJECTOR_QUEUE", 1024),
			ProjectorMaxRetries: getint("PROJECTOR_MAX_RETRIES", 3),
			ProjectorBackoff:    getdur("PROJECTOR_BACKOFF", 50*time.Millisecond),
			ReconcileInterval:   getdur("RECONCILE_INTERVAL", 30*time.Second),
			ReconcileTolerance:  getint("RECONCILE_TOLERANCE", 1),
			ReconcileWindow:     getint("RECONCILE_WINDOW", 100),
			MarkerPruneInterval: getdur("MARKER_PRUNE_INTERVAL", 5*time.Minute),
		},

		Stream: StreamConfig{
			Buffer:         getint("STREAM_BUFFER", 16),
			OverflowPolicy: strings.ToLower(getenv("STREAM_OVERFLOW_POLICY", OverflowDropOldest)),
			MaxPerIdentity: getint("STREAM_MAX_PER_IDENTITY", 3),
			Heartbeat:      getdur("STREAM_HEARTBEAT", 15*time.Second),
		},

		Kafka: KafkaConfig{
			Enabled: getbool("KAFKA_ENABLED", false),
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "leaderboard.rankings"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-leaderboard-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = DriverPostgres
	}
	if cfg.Stream.OverflowPolicy == "drop-oldest" {
		cfg.Stream.OverflowPolicy = OverflowDropOldest
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.WriteTimeout < 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if len(cfg.Token.Secret) < 32 {
		return cfg, errors.New("TOKEN_SECRET must be at least 32 bytes")
	}
	if cfg.Token.MaxTTL <= 0 {
		return cfg, errors.New("TOKEN_MAX_TTL must be > 0")
	}
	p := cfg.Pipeline
	if p.ValidateTimeout <= 0 || p.AdmitTimeout <= 0 || p.LedgerTimeout <= 0 || p.LockTimeout <= 0 {
		return cfg, errors.New("pipeline timeouts must be positive durations")
	}
	if p.LockTimeout > p.LedgerTimeout {
		return cfg, errors.New("LOCK_TIMEOUT must not exceed LEDGER_TIMEOUT")
	}
	lb := cfg.Leaderboard
	if lb.Window < 1 || lb.MaxLimit < 1 || lb.ReconcileWindow < 1 {
		return cfg, errors.New("LEADERBOARD_WINDOW, LEADERBOARD_MAX_LIMIT and RECONCILE_WINDOW must be >= 1")
	}
	if lb.ProjectorQueue < 1 || lb.ProjectorMaxRetries < 0 || lb.ProjectorBackoff < 0 {
		return cfg, errors.New("projector settings out of range")
	}
	if lb.ReconcileInterval <= 0 || lb.MarkerPruneInterval <= 0 {
		return cfg, errors.New("RECONCILE_INTERVAL and MARKER_PRUNE_INTERVAL must be > 0")
	}
	if lb.ReconcileTolerance < 0 {
		return cfg, errors.New("RECONCILE_TOLERANCE must be >= 0")
	}
	switch cfg.Stream.OverflowPolicy {
	case OverflowDropOldest, OverflowDisconnect:
	default:
		return cfg, errors.New("STREAM_OVERFLOW_POLICY must be one of: drop_oldest, disconnect")
	}
	if cfg.Stream.Buffer < 1 || cfg.Stream.MaxPerIdentity < 1 || cfg.Stream.Heartbeat <= 0 {
		return cfg, errors.New("stream settings out of range")
	}
	if cfg.Kafka.Enabled && (len(cfg.Kafka.Brokers) == 0 || strings.TrimSpace(cfg.Kafka.Topic) == "") {
		return cfg, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required when KAFKA_ENABLED")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
