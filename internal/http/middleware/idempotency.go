// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for gift submissions. It validates
// an Idempotency-Key request header, optionally checks whether the key already
// names a recorded voucher, and annotates the request context so downstream
// handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - bypass rate limiting for keys that already name a voucher (IsRateBypass)
//
// The middleware never serves the replay itself; the submission service
// resolves the stored voucher and answers with idempotent=true.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the canonical request header that clients use to
// convey an idempotency key for gift submissions.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyRateBypass = "rate.bypass" // bool: true when a stored record exists
)

// GetIdempotencyKey returns the validated, lower-cased idempotency key stored
// in the Gin context by IdempotencyValidator. The second return value
// indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyOptions configures header validation behavior for
// IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative RFC7230-like
	// token pattern is used: ^[A-Za-z0-9._~\-:]+$
	// UUID syntax is enforced later by the request validator.
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a still-valid record exists for key at the
// given time. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it in the request context, and checks for a prior submission via
// the supplied lookup.
//
// Behavior:
//   - If header is absent: the middleware is a no-op.
//   - If header fails validation: responds 400 with the standard error envelope.
//   - If lookup indicates a replay: sets replay + rate-bypass flags.
//   - Always invokes the next handler unless validation fails.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"error":      "invalid Idempotency-Key",
			})
			return
		}

		key = strings.ToLower(key)
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			exists, err := lookup(c.Request.Context(), key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
