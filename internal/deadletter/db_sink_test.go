package deadletter

import (
	"context"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-voucher-gift/internal/domain"
)

func newSinkDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := db.AutoMigrate(&domain.DeadLetter{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestDBSink_WriteAndList(t *testing.T) {
	s := NewDBSink(newSinkDB(t))
	ctx := context.Background()

	d := &domain.DeadLetter{VoucherID: "v1", Body: `{"voucherId":"v1"}`, FailureType: FailureTypeTransient, ReceiveCount: 3}
	if err := s.Write(ctx, d); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if d.ID == "" || d.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt to be filled: %+v", d)
	}

	list, err := s.List(ctx, 10)
	if err != nil || len(list) != 1 || list[0].VoucherID != "v1" || list[0].ReceiveCount != 3 {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	if n, err := s.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
}
