package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-voucher-gift/internal/delivery"
	"github.com/tbourn/go-voucher-gift/internal/domain"
	"github.com/tbourn/go-voucher-gift/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:vouchersvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stubPublisher records published bodies; PublishFn overrides the behavior.
type stubPublisher struct {
	mu        sync.Mutex
	bodies    [][]byte
	PublishFn func(ctx context.Context, body []byte) (string, error)
}

func (p *stubPublisher) Publish(ctx context.Context, body []byte) (string, error) {
	if p.PublishFn != nil {
		id, err := p.PublishFn(ctx, body)
		if err != nil {
			return "", err
		}
		p.record(body)
		return id, nil
	}
	p.record(body)
	return fmt.Sprintf("msg-%d", p.count()), nil
}

func (p *stubPublisher) record(b []byte) {
	p.mu.Lock()
	p.bodies = append(p.bodies, append([]byte(nil), b...))
	p.mu.Unlock()
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bodies)
}

// stubDeliverer delivers through DeliverFn and counts calls.
type stubDeliverer struct {
	mu        sync.Mutex
	calls     int
	DeliverFn func(ctx context.Context, g delivery.Gift) error
}

func (d *stubDeliverer) Deliver(ctx context.Context, g delivery.Gift) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.DeliverFn != nil {
		return d.DeliverFn(ctx, g)
	}
	return nil
}

// stubSink keeps dead letters in memory.
type stubSink struct {
	mu      sync.Mutex
	letters []domain.DeadLetter
	err     error
}

func (s *stubSink) Write(_ context.Context, d *domain.DeadLetter) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.letters = append(s.letters, *d)
	s.mu.Unlock()
	return nil
}

func (s *stubSink) all() []domain.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DeadLetter(nil), s.letters...)
}
