package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

func TestOutbox_PublishLifecycle(t *testing.T) {
	db := newTestDB(t, &domain.OutboxEntry{})
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []domain.OutboxEntry{
		{ID: "o1", VoucherID: "v1", Payload: "{}", Status: domain.OutboxPending, CreatedAt: now.Add(-time.Minute)},
		{ID: "o2", VoucherID: "v2", Payload: "{}", Status: domain.OutboxPending, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "o3", VoucherID: "v3", Payload: "{}", Status: domain.OutboxPending, CreatedAt: now.Add(time.Minute)},
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	pending, err := ListPendingOutbox(ctx, db, now, 10)
	if err != nil {
		t.Fatalf("ListPendingOutbox: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "o2" || pending[1].ID != "o1" {
		t.Fatalf("expected [o2 o1], got %+v", pending)
	}

	if err := RecordOutboxFailure(ctx, db, "v1", "queue down"); err != nil {
		t.Fatalf("RecordOutboxFailure: %v", err)
	}
	var e domain.OutboxEntry
	db.First(&e, "id = ?", "o1")
	if e.Attempts != 1 || e.LastError != "queue down" || e.Status != domain.OutboxPending {
		t.Fatalf("unexpected entry after failure: %+v", e)
	}

	if err := MarkOutboxPublished(ctx, db, "v1", "msg-1", now); err != nil {
		t.Fatalf("MarkOutboxPublished: %v", err)
	}
	db.First(&e, "id = ?", "o1")
	if e.Status != domain.OutboxPublished || e.MessageID != "msg-1" || e.Attempts != 2 || e.LastError != "" || e.PublishedAt == nil {
		t.Fatalf("unexpected entry after publish: %+v", e)
	}

	pending, _ = ListPendingOutbox(ctx, db, now, 10)
	if len(pending) != 1 || pending[0].ID != "o2" {
		t.Fatalf("expected only o2 pending, got %+v", pending)
	}

	n, err := PurgePublishedOutbox(ctx, db, now.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got n=%d err=%v", n, err)
	}
}
