// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage, voucher policy, rate limiting, the delivery queue and
// workers, dead letters and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
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

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	DSN    string // DB_DSN (postgres)
}

// VoucherConfig holds the amount policy.
type VoucherConfig struct {
	MinAmount          decimal.Decimal // VOUCHER_MIN_AMOUNT
	MaxAmount          decimal.Decimal // VOUCHER_MAX_AMOUNT
	HighValueThreshold decimal.Decimal // VOUCHER_HIGH_VALUE_THRESHOLD
}

// RedisConfig locates the shared rate-limit counter store.
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	Prefix   string // REDIS_PREFIX
}

// RateConfig configures the fixed-window rate limiter.
type RateConfig struct {
	Window       time.Duration // RATE_WINDOW
	Max          int           // RATE_MAX
	HighValueMax int           // RATE_HIGH_VALUE_MAX
	Store        string        // RATE_STORE: memory|redis
	Redis        RedisConfig
}

// QueueConfig selects the delivery queue transport.
type QueueConfig struct {
	Driver             string        // QUEUE_DRIVER: sql|sqs
	Name               string        // QUEUE_NAME (sql)
	SQSURL             string        // SQS_QUEUE_URL
	SQSEndpoint        string        // SQS_ENDPOINT (e.g. localstack)
	AWSRegion          string        // AWS_REGION
	AWSAccessKeyID     string        // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string        // AWS_SECRET_ACCESS_KEY
	VisibilityTimeout  time.Duration // QUEUE_VISIBILITY_TIMEOUT
	MaxReceives        int           // QUEUE_MAX_RECEIVES (sql redrive)
	WaitTime           time.Duration // QUEUE_WAIT_TIME (sqs long polling)
}

// DeliveryConfig tunes the delivery consumer.
type DeliveryConfig struct {
	MaxAttempts  int           // DELIVERY_MAX_ATTEMPTS
	BatchSize    int           // DELIVERY_BATCH_SIZE
	Concurrency  int           // DELIVERY_CONCURRENCY
	PollInterval time.Duration // DELIVERY_POLL_INTERVAL
	RPS          float64       // DELIVERY_RPS (0 disables pacing)
}

// OutboxConfig tunes the outbox sweeper and the janitor.
type OutboxConfig struct {
	SweepInterval   time.Duration // OUTBOX_SWEEP_INTERVAL
	SweepAfter      time.Duration // OUTBOX_SWEEP_AFTER
	SweepBatch      int           // OUTBOX_SWEEP_BATCH
	RetainPublished time.Duration // OUTBOX_RETAIN_PUBLISHED
	JanitorInterval time.Duration // JANITOR_INTERVAL
}

// DeadLetterConfig selects where terminal failures are recorded.
type DeadLetterConfig struct {
	Driver       string   // DEADLETTER_DRIVER: db|kafka
	KafkaBrokers []string // KAFKA_BROKERS (comma separated)
	KafkaTopic   string   // KAFKA_DLQ_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	MetricsAddr       string        // worker metrics listener, e.g. ":9091"
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogFile        string // optional rotated log file
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB       DBConfig
	Voucher  VoucherConfig
	Rate     RateConfig
	Queue    QueueConfig
	Delivery DeliveryConfig
	Outbox   OutboxConfig

	DeadLetter DeadLetterConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a key maps to its voucher

	// WorkerEnabled runs the delivery workers inside the API process.
	WorkerEnabled bool

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
	voucher, err := loadVoucher()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		// Server
		Port:              getenv("PORT", "3000"),
		MetricsAddr:       getenv("METRICS_ADDR", ":9091"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogFile:        getenv("LOG_FILE", ""),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "vouchers.db"),
			DSN:    getenv("DB_DSN", ""),
		},

		Voucher: voucher,

		Rate: RateConfig{
			Window:       getdur("RATE_WINDOW", time.Minute),
			Max:          getint("RATE_MAX", 10),
			HighValueMax: getint("RATE_HIGH_VALUE_MAX", 3),
			Store:        strings.ToLower(getenv("RATE_STORE", "memory")),
			Redis: RedisConfig{
				Addr:     getenv("REDIS_ADDR", "localhost:6379"),
				Password: getenv("REDIS_PASSWORD", ""),
				DB:       getint("REDIS_DB", 0),
				Prefix:   getenv("REDIS_PREFIX", "ratelimit:"),
			},
		},

		Queue: QueueConfig{
			Driver:             strings.ToLower(getenv("QUEUE_DRIVER", "sql")),
			Name:               getenv("QUEUE_NAME", "voucher-gifts"),
			SQSURL:             getenv("SQS_QUEUE_URL", ""),
			SQSEndpoint:        getenv("SQS_ENDPOINT", ""),
			AWSRegion:          getenv("AWS_REGION", "us-east-1"),
			AWSAccessKeyID:     getenv("AWS_ACCESS_KEY_ID", ""),
			AWSSecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY", ""),
			VisibilityTimeout:  getdur("QUEUE_VISIBILITY_TIMEOUT", 30*time.Second),
			MaxReceives:        getint("QUEUE_MAX_RECEIVES", 5),
			WaitTime:           getdur("QUEUE_WAIT_TIME", 10*time.Second),
		},

		Delivery: DeliveryConfig{
			MaxAttempts:  getint("DELIVERY_MAX_ATTEMPTS", 3),
			BatchSize:    getint("DELIVERY_BATCH_SIZE", 10),
			Concurrency:  getint("DELIVERY_CONCURRENCY", 4),
			PollInterval: getdur("DELIVERY_POLL_INTERVAL", time.Second),
			RPS:          getfloat("DELIVERY_RPS", 50),
		},

		Outbox: OutboxConfig{
			SweepInterval:   getdur("OUTBOX_SWEEP_INTERVAL", 30*time.Second),
			SweepAfter:      getdur("OUTBOX_SWEEP_AFTER", time.Minute),
			SweepBatch:      getint("OUTBOX_SWEEP_BATCH", 100),
			RetainPublished: getdur("OUTBOX_RETAIN_PUBLISHED", 72*time.Hour),
			JanitorInterval: getdur("JANITOR_INTERVAL", time.Hour),
		},

		DeadLetter: DeadLetterConfig{
			Driver:       strings.ToLower(getenv("DEADLETTER_DRIVER", "db")),
			KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			KafkaTopic:   getenv("KAFKA_DLQ_TOPIC", "voucher-gifts-dlq"),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 7*24*time.Hour),
		WorkerEnabled:  getbool("WORKER_ENABLED", true),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-voucher-gift"),
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
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if strings.TrimSpace(cfg.MetricsAddr) == "" {
		return errors.New("METRICS_ADDR must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 || cfg.MaxBodyBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES and MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver)
	}

	v := cfg.Voucher
	if !v.MinAmount.IsPositive() {
		return errors.New("VOUCHER_MIN_AMOUNT must be > 0")
	}
	if v.MaxAmount.LessThan(v.MinAmount) {
		return errors.New("VOUCHER_MAX_AMOUNT must be >= VOUCHER_MIN_AMOUNT")
	}
	if v.HighValueThreshold.LessThan(v.MinAmount) {
		return errors.New("VOUCHER_HIGH_VALUE_THRESHOLD must be >= VOUCHER_MIN_AMOUNT")
	}

	if cfg.Rate.Window <= 0 {
		return errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Rate.Max < 1 || cfg.Rate.HighValueMax < 1 {
		return errors.New("RATE_MAX and RATE_HIGH_VALUE_MAX must be >= 1")
	}
	switch cfg.Rate.Store {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Rate.Redis.Addr) == "" {
			return errors.New("REDIS_ADDR is required when RATE_STORE=redis")
		}
	default:
		return fmt.Errorf("RATE_STORE must be memory or redis, got %q", cfg.Rate.Store)
	}

	switch cfg.Queue.Driver {
	case "sql":
		if strings.TrimSpace(cfg.Queue.Name) == "" {
			return errors.New("QUEUE_NAME must not be empty")
		}
	case "sqs":
		if strings.TrimSpace(cfg.Queue.SQSURL) == "" {
			return errors.New("SQS_QUEUE_URL is required when QUEUE_DRIVER=sqs")
		}
	default:
		return fmt.Errorf("QUEUE_DRIVER must be sql or sqs, got %q", cfg.Queue.Driver)
	}
	if cfg.Queue.VisibilityTimeout <= 0 {
		return errors.New("QUEUE_VISIBILITY_TIMEOUT must be > 0")
	}
	if cfg.Queue.MaxReceives < 0 || cfg.Queue.WaitTime < 0 {
		return errors.New("QUEUE_MAX_RECEIVES and QUEUE_WAIT_TIME must be >= 0")
	}
	if cfg.Queue.MaxReceives > 0 && cfg.Queue.MaxReceives < cfg.Delivery.MaxAttempts {
		return errors.New("QUEUE_MAX_RECEIVES must be >= DELIVERY_MAX_ATTEMPTS")
	}

	d := cfg.Delivery
	if d.MaxAttempts < 1 || d.BatchSize < 1 || d.Concurrency < 1 {
		return errors.New("DELIVERY_MAX_ATTEMPTS, DELIVERY_BATCH_SIZE and DELIVERY_CONCURRENCY must be >= 1")
	}
	if d.PollInterval <= 0 {
		return errors.New("DELIVERY_POLL_INTERVAL must be > 0")
	}
	if d.RPS < 0 {
		return errors.New("DELIVERY_RPS must be >= 0")
	}

	o := cfg.Outbox
	if o.SweepInterval <= 0 || o.SweepAfter <= 0 || o.JanitorInterval <= 0 || o.RetainPublished <= 0 {
		return errors.New("outbox sweeper and janitor durations must be > 0")
	}
	if o.SweepBatch < 1 {
		return errors.New("OUTBOX_SWEEP_BATCH must be >= 1")
	}

	switch cfg.DeadLetter.Driver {
	case "db":
	case "kafka":
		if len(cfg.DeadLetter.KafkaBrokers) == 0 || strings.TrimSpace(cfg.DeadLetter.KafkaTopic) == "" {
			return errors.New("KAFKA_BROKERS and KAFKA_DLQ_TOPIC are required when DEADLETTER_DRIVER=kafka")
		}
	default:
		return fmt.Errorf("DEADLETTER_DRIVER must be db or kafka, got %q", cfg.DeadLetter.Driver)
	}

	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// loadVoucher reads the amount policy. Unlike the other settings a malformed
// amount is an error rather than a silent default.
func loadVoucher() (VoucherConfig, error) {
	var (
		v   VoucherConfig
		err error
	)
	if v.MinAmount, err = getdecimal("VOUCHER_MIN_AMOUNT", decimal.NewFromInt(1)); err != nil {
		return v, err
	}
	if v.MaxAmount, err = getdecimal("VOUCHER_MAX_AMOUNT", decimal.NewFromInt(10000)); err != nil {
		return v, err
	}
	if v.HighValueThreshold, err = getdecimal("VOUCHER_HIGH_VALUE_THRESHOLD", decimal.NewFromInt(1000)); err != nil {
		return v, err
	}
	return v, nil
}

// ---- helpers ----

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

// getdecimal parses money amounts exactly; floats would round 0.1-style values.
func getdecimal(k string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s must be a decimal amount, got %q", k, v)
	}
	return d, nil
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
