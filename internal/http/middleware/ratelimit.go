// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a fixed-window rate limiter keyed by caller identity.
// Counts live behind a cache.Counter so the same middleware works with the
// process-local MemoryCounter or a shared RedisCounter.
//
// Features:
//   - One counter per identity (user ID or client IP) per window
//   - A stricter ceiling for high-value gift submissions, detected by peeking
//     at the request body amount
//   - X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset headers
//   - Seamless bypass for idempotent replays (when paired with IdempotencyValidator)
//
// Notes:
//   - The limiter is intended for edge-level abuse control; it is not an
//     authorization mechanism.
//   - Counter store failures fail open: the request proceeds and a warning is
//     logged.
package middleware

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/tbourn/go-voucher-gift/internal/cache"
)

// keyFunc selects the identity used to key a rate-limit counter.
//
// Implementations should return a stable string for the duration of a request
// (e.g., "user:<id>" or "ip:<addr>").
type keyFunc func(*gin.Context) string

// KeyByUserOrIP returns a keyFunc that prefers a user identity (from the Gin
// context under "userID", typically set by an auth middleware) and falls back
// to the client IP address.
//
// The resulting keys are prefixed to avoid collisions between user and IP
// namespaces (e.g., "user:abc123" vs "ip:203.0.113.7").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimitOptions configures RateLimiter.
type RateLimitOptions struct {
	// Window is the fixed window length. Values <= 0 default to one minute.
	Window time.Duration
	// Max is the number of requests allowed per identity per window.
	// Values <= 0 default to 10.
	Max int
	// HighValueMax replaces Max for gift submissions whose amount is at or
	// above HighValueThreshold. Values <= 0 disable the stricter ceiling.
	HighValueMax int
	// HighValueThreshold is the amount that marks a submission as high-value.
	HighValueThreshold decimal.Decimal
	// GiftPath is the full route path of the gift submission endpoint
	// (e.g. "/api/vouchers/gift"). Only POSTs to it are inspected.
	GiftPath string
	// MaxPeekBytes caps how much of the body is buffered for inspection.
	// Values <= 0 default to 64 KiB.
	MaxPeekBytes int64
}

// RateLimiter enforces a fixed-window request ceiling per identity.
//
// This type is safe for concurrent use as long as its Counter is.
type RateLimiter struct {
	counter cache.Counter
	opts    RateLimitOptions
	keyFn   keyFunc
	now     func() time.Time
}

// NewRateLimiter constructs a RateLimiter backed by counter and keyed by keyFn.
// A nil keyFn defaults to KeyByUserOrIP.
func NewRateLimiter(counter cache.Counter, opts RateLimitOptions, keyFn keyFunc) *RateLimiter {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Max <= 0 {
		opts.Max = 10
	}
	if opts.MaxPeekBytes <= 0 {
		opts.MaxPeekBytes = 64 << 10
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{counter: counter, opts: opts, keyFn: keyFn, now: time.Now}
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// limitFor returns the ceiling that applies to this request.
func (rl *RateLimiter) limitFor(c *gin.Context) int {
	if rl.opts.HighValueMax <= 0 || c.Request.Method != http.MethodPost {
		return rl.opts.Max
	}
	if rl.opts.GiftPath != "" && c.Request.URL.Path != rl.opts.GiftPath {
		return rl.opts.Max
	}
	amount, ok := rl.peekAmount(c)
	if !ok || amount.LessThan(rl.opts.HighValueThreshold) {
		return rl.opts.Max
	}
	LoggerFrom(c).Info().
		Str("amount", amount.String()).
		Str("client_ip", c.ClientIP()).
		Msg("high-value voucher request detected")
	return rl.opts.HighValueMax
}

// peekAmount reads the body's "amount" field and restores the body so the
// handler can read it again.
func (rl *RateLimiter) peekAmount(c *gin.Context) (decimal.Decimal, bool) {
	if c.Request.Body == nil {
		return decimal.Zero, false
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, rl.opts.MaxPeekBytes))
	c.Request.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), c.Request.Body), c.Request.Body}
	if err != nil {
		return decimal.Zero, false
	}

	res := gjson.GetBytes(head, "amount")
	var raw string
	switch res.Type {
	case gjson.Number:
		raw = res.Raw
	case gjson.String:
		raw = res.Str
	default:
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Handler returns a Gin middleware that enforces the fixed-window limit.
//
// The middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 42
//	{
//	  "success":    false,
//	  "request_id": "<uuid>",
//	  "code":       "rate_limited",
//	  "error":      "Too many requests, please try again later",
//	  "retryAfter": 42
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		limit := rl.limitFor(c)
		key := rl.keyFn(c)
		count, resetIn, err := rl.counter.Incr(c.Request.Context(), key, rl.opts.Window)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("rate limit store unavailable")
			c.Next()
			return
		}

		retryAfter := int64(math.Ceil(resetIn.Seconds()))
		if retryAfter < 0 {
			retryAfter = 0
		}

		if count > int64(limit) {
			LoggerFrom(c).Warn().
				Str("key", key).
				Int64("count", count).
				Int("limit", limit).
				Dur("window", rl.opts.Window).
				Msg("rate limit exceeded")
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "rate_limited",
				"error":      "Too many requests, please try again later",
				"retryAfter": retryAfter,
			})
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(resetIn).Unix(), 10))
		c.Next()
	}
}
