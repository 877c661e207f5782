package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/services"
)

type stubStats struct{ s services.DeliveryStats }

func (s stubStats) Snapshot() services.DeliveryStats { return s.s }

type stubLister struct {
	gotLimit int
	items    []domain.DeadLetter
	err      error
}

func (l *stubLister) List(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	l.gotLimit = limit
	return l.items, l.err
}

func TestDeliveryStats(t *testing.T) {
	h := New(Deps{
		Stats: stubStats{services.DeliveryStats{Processed: 5, Sent: 3, Failed: 1, Retried: 1, DeadLettered: 1}},
		Counts: func(context.Context) (map[domain.Status]int64, error) {
			return map[domain.Status]int64{domain.StatusPending: 2, domain.StatusSent: 3, domain.StatusFailed: 1}, nil
		},
	})
	w := do(newRouter(h), http.MethodGet, "/delivery/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var env struct {
		Success bool              `json:"success"`
		Data    DeliveryStatsData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("json: %v", err)
	}
	if env.Data.Consumer.Processed != 5 || env.Data.Consumer.DeadLettered != 1 {
		t.Fatalf("unexpected consumer stats: %+v", env.Data.Consumer)
	}
	if env.Data.Vouchers[domain.StatusPending] != 2 || env.Data.Vouchers[domain.StatusFailed] != 1 {
		t.Fatalf("unexpected counts: %+v", env.Data.Vouchers)
	}
	if env.Data.QueueDepth != nil || env.Data.DeadLetters != nil {
		t.Fatalf("backlog totals should be omitted without sources: %s", w.Body.String())
	}
}

func TestDeliveryStats_BacklogTotals(t *testing.T) {
	h := New(Deps{
		Stats:           stubStats{},
		QueueDepth:      func(context.Context) (int64, error) { return 4, nil },
		DeadLetterCount: func(context.Context) (int64, error) { return 0, errors.New("db down") },
	})
	w := do(newRouter(h), http.MethodGet, "/delivery/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var env struct {
		Data DeliveryStatsData `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("json: %v", err)
	}
	if env.Data.QueueDepth == nil || *env.Data.QueueDepth != 4 {
		t.Fatalf("queue depth not reported: %s", w.Body.String())
	}
	if env.Data.DeadLetters != nil {
		t.Fatalf("failed dead letter count should be omitted: %s", w.Body.String())
	}
}

func TestDeliveryStats_CountErrorStillServesCounters(t *testing.T) {
	h := New(Deps{
		Stats:  stubStats{services.DeliveryStats{Sent: 7}},
		Counts: func(context.Context) (map[domain.Status]int64, error) { return nil, errors.New("db down") },
	})
	w := do(newRouter(h), http.MethodGet, "/delivery/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var env struct {
		Data DeliveryStatsData `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env.Data.Consumer.Sent != 7 || env.Data.Vouchers != nil {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListDeadLetters(t *testing.T) {
	l := &stubLister{items: []domain.DeadLetter{{
		ID: "d1", VoucherID: "v1", FailureType: "permanent", Reason: "bad recipient", CreatedAt: time.Now(),
	}}}
	r := newRouter(New(Deps{DeadLetters: l}))

	w := do(r, http.MethodGet, "/delivery/dead-letters?limit=5", "", nil)
	if w.Code != http.StatusOK || l.gotLimit != 5 {
		t.Fatalf("status=%d limit=%d", w.Code, l.gotLimit)
	}
	var env struct {
		Data []domain.DeadLetter `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(env.Data) != 1 || env.Data[0].VoucherID != "v1" {
		t.Fatalf("unexpected data: %+v", env.Data)
	}

	for q, want := range map[string]int{"": 50, "?limit=x": 50, "?limit=0": 1, "?limit=9999": 500} {
		do(r, http.MethodGet, "/delivery/dead-letters"+q, "", nil)
		if l.gotLimit != want {
			t.Fatalf("%q: limit=%d want %d", q, l.gotLimit, want)
		}
	}
}

func TestListDeadLetters_EmptyIsArray(t *testing.T) {
	r := newRouter(New(Deps{DeadLetters: &stubLister{}}))
	w := do(r, http.MethodGet, "/delivery/dead-letters", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if got := w.Body.String(); got != `{"success":true,"data":[]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestListDeadLetters_UnavailableAndError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := do(newRouter(New(Deps{})), http.MethodGet, "/delivery/dead-letters", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no lister: status=%d", w.Code)
	}

	w = httptest.NewRecorder()
	r := newRouter(New(Deps{DeadLetters: &stubLister{err: errors.New("boom")}}))
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/delivery/dead-letters", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("list error: status=%d", w.Code)
	}
}
