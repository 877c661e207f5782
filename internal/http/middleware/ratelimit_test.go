package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-voucher-gift/internal/cache"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	// Ensure a deterministic IP for ClientIP()
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	key := KeyByUserOrIP()(c)
	if !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("expected ip-based key; got %q", key)
	}

	c.Set("userID", "u123")
	if key2 := KeyByUserOrIP()(c); key2 != "user:u123" {
		t.Fatalf("expected user-based key; got %q", key2)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{}, nil)
	if rl.opts.Window != time.Minute || rl.opts.Max != 10 || rl.opts.MaxPeekBytes != 64<<10 {
		t.Fatalf("unexpected defaults: %+v", rl.opts)
	}
	if rl.keyFn == nil {
		t.Fatalf("expected default keyFn")
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=true when set")
	}
	// Non-bool values read as false
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false when non-bool stored")
	}
}

func newLimitedRouter(rl *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(pre...)
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/api/vouchers/gift", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(b))
	})
	return r
}

func TestRateLimiter_AllowThenDeny(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{Window: time.Minute, Max: 2}, nil)
	r := newLimitedRouter(rl)

	for i := 1; i <= 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should be allowed, got %d", i, w.Code)
		}
		if got := w.Header().Get("X-RateLimit-Limit"); got != "2" {
			t.Fatalf("X-RateLimit-Limit=%q", got)
		}
		if got := w.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(2-i) {
			t.Fatalf("request %d: X-RateLimit-Remaining=%q", i, got)
		}
		reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
		if err != nil || reset < time.Now().Unix() {
			t.Fatalf("bad X-RateLimit-Reset %q", w.Header().Get("X-RateLimit-Reset"))
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request should be rate-limited, got %d", w.Code)
	}
	ra, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || ra < 1 || ra > 60 {
		t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["success"] != false || body["code"] != "rate_limited" ||
		body["error"] != "Too many requests, please try again later" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected JSON body: %v", body)
	}
	if got, _ := body["retryAfter"].(float64); int(got) != ra {
		t.Fatalf("retryAfter=%v, Retry-After=%d", body["retryAfter"], ra)
	}
}

func TestRateLimiter_HighValueCeiling(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{
		Window:             time.Minute,
		Max:                10,
		HighValueMax:       3,
		HighValueThreshold: decimal.NewFromInt(1000),
		GiftPath:           "/api/vouchers/gift",
	}, nil)
	r := newLimitedRouter(rl)

	payload := `{"recipientEmail":"a@b.co","amount":1500}`
	for i := 1; i <= 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vouchers/gift", strings.NewReader(payload)))
		if w.Code != http.StatusOK {
			t.Fatalf("high-value request %d should pass, got %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "3" {
			t.Fatalf("expected limit 3, got %q", w.Header().Get("X-RateLimit-Limit"))
		}
		// the handler still sees the full body
		if w.Body.String() != payload {
			t.Fatalf("body not restored: %q", w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vouchers/gift", strings.NewReader(payload)))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth high-value request should be limited, got %d", w.Code)
	}

	// Same identity, ordinary amount: the shared counter is at 4, below Max=10.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vouchers/gift", strings.NewReader(`{"amount":"25"}`)))
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "10" {
		t.Fatalf("ordinary request: code=%d limit=%q", w.Code, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_HighValueOnlyOnGiftPath(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{
		Max:                5,
		HighValueMax:       1,
		HighValueThreshold: decimal.NewFromInt(1000),
		GiftPath:           "/api/vouchers/gift",
	}, nil)
	r := newLimitedRouter(rl)
	r.POST("/other", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/other", strings.NewReader(`{"amount":5000}`)))
	if w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Fatalf("non-gift path should use Max, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_Bypass(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{Max: 1}, nil)
	r := newLimitedRouter(rl, func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("bypass request %d should be allowed, got %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("bypassed request should not carry rate headers")
		}
	}
}

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimiter_StoreErrorFailsOpen(t *testing.T) {
	rl := NewRateLimiter(failingCounter{}, RateLimitOptions{Max: 1}, nil)
	r := newLimitedRouter(rl)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass when store is down, got %d", i, w.Code)
		}
	}
}

func TestRateLimiter_PeekAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(cache.NewMemoryCounter(), RateLimitOptions{}, nil)

	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{`{"amount":1000}`, "1000", true},
		{`{"amount":"999.99"}`, "999.99", true},
		{`{"amount":true}`, "", false},
		{`{"amount":"lots"}`, "", false},
		{`{}`, "", false},
		{`not json`, "", false},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		got, ok := rl.peekAmount(c)
		if ok != tc.ok || (ok && got.String() != tc.want) {
			t.Fatalf("%s: got (%s,%v) want (%s,%v)", tc.body, got, ok, tc.want, tc.ok)
		}
		rest, _ := io.ReadAll(c.Request.Body)
		if string(rest) != tc.body {
			t.Fatalf("%s: body not restored, got %q", tc.body, rest)
		}
	}
}
