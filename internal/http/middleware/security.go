// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware that attaches a
// conservative set of HTTP security headers for a JSON API running behind a
// reverse proxy. HSTS is opt-in and only applied when the request is HTTPS.
// Voucher responses carry recipient addresses, so NoStore is recommended.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures HTTP security headers emitted by SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // add Cache-Control: no-store
	EnablePolicy bool          // include Permissions-Policy, etc.
}

// exposedHeaders are the response headers browser clients need to read:
// the correlation ID and the rate-limit budget.
var exposedHeaders = []string{
	requestIDHeader,
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"Retry-After",
}

// SecurityHeaders returns a Gin middleware that adds security headers.
//
// Behavior:
//   - Always sets X-Content-Type-Options, X-Frame-Options, Referrer-Policy.
//   - EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
//   - NoStore adds Cache-Control: no-store, Pragma and Expires.
//   - EnableHSTS adds Strict-Transport-Security on HTTPS requests.
//   - Appends the correlation and rate-limit headers to
//     Access-Control-Expose-Headers without duplicating entries.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int64(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int64((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.FormatInt(maxAge, 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		h.Set("Access-Control-Expose-Headers", mergeHeaderList(h.Get("Access-Control-Expose-Headers"), exposedHeaders))

		c.Next()
	}
}

// mergeHeaderList appends the names in add that cur does not already list
// (case-insensitive).
func mergeHeaderList(cur string, add []string) string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" {
			seen[strings.ToLower(p)] = struct{}{}
			out = append(out, p)
		}
	}
	for _, a := range add {
		if _, ok := seen[strings.ToLower(a)]; !ok {
			seen[strings.ToLower(a)] = struct{}{}
			out = append(out, a)
		}
	}
	return strings.Join(out, ", ")
}

// isHTTPS reports whether the incoming request used HTTPS either directly
// (r.TLS != nil) or via a reverse proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
