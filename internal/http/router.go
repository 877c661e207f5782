// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-voucher-gift/docs" // swagger spec registration
	"github.com/tbourn/go-voucher-gift/internal/cache"
	"github.com/tbourn/go-voucher-gift/internal/config"
	"github.com/tbourn/go-voucher-gift/internal/deadletter"
	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/http/handlers"
	"github.com/tbourn/go-voucher-gift/internal/http/middleware"
	"github.com/tbourn/go-voucher-gift/internal/queue"
	"github.com/tbourn/go-voucher-gift/internal/repo"
)

// Deps are the process-level collaborators the router mounts.
//
// Counter is the rate-limit store; nil falls back to an in-memory one.
// Registerer/Gatherer default to the Prometheus default registry.
type Deps struct {
	DB          *gorm.DB
	Vouchers    handlers.VoucherService
	Delivery    handlers.DeliveryProcessor
	Stats       handlers.StatsSource
	Queue       queue.Queue
	DeadLetters deadletter.Lister
	Counter     cache.Counter
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
}

var corsAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. CORS, gzip and security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	reg, gatherer := d.Registerer, d.Gatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.NewHTTPMetrics(reg).Handler())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(d.DB),
	))

	// 8) Fixed-window rate limiter per user/IP
	counter := d.Counter
	if counter == nil {
		counter = cache.NewMemoryCounter()
	}
	rl := middleware.NewRateLimiter(counter, middleware.RateLimitOptions{
		Window:             cfg.Rate.Window,
		Max:                cfg.Rate.Max,
		HighValueMax:       cfg.Rate.HighValueMax,
		HighValueThreshold: cfg.Voucher.HighValueThreshold,
		GiftPath:           joinPath(cfg.APIBasePath, "/vouchers/gift"),
	}, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// API responses carry voucher state and must not be cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Deps{
		Vouchers:        d.Vouchers,
		Delivery:        d.Delivery,
		Stats:           d.Stats,
		Counts:          statusCounter(d.DB),
		QueueDepth:      queueDepth(d.Queue),
		DeadLetterCount: deadLetterCount(d.DeadLetters),
		DeadLetters:     d.DeadLetters,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Vouchers
		api.POST("/vouchers/gift", h.GiftVoucher)
		api.GET("/vouchers/:id", h.GetVoucher)

		// Local development: run one delivery synchronously
		api.POST("/simulate/process-voucher", h.SimulateProcessVoucher)

		// Delivery consumer
		api.GET("/delivery/stats", h.DeliveryStats)
		api.GET("/delivery/dead-letters", h.ListDeadLetters)
	}
}

// idempotencyLookup reports whether key already maps to a live record.
// Without a DB every key is treated as new.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, key, now)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

func statusCounter(db *gorm.DB) handlers.StatusCounter {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) (map[domain.Status]int64, error) {
		return repo.CountVouchersByStatus(ctx, db)
	}
}

func queueDepth(q queue.Queue) handlers.CountFunc {
	if d, ok := q.(queue.DepthReporter); ok {
		return d.Depth
	}
	return nil
}

func deadLetterCount(l deadletter.Lister) handlers.CountFunc {
	if c, ok := l.(deadletter.Counter); ok {
		return c.Count
	}
	return nil
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
