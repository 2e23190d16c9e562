package uow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	"ncrflow/internal/ports"
)

func setupUnitOfWork(t *testing.T) (*UnitOfWork, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "uow.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&model.KVEntry{}); err != nil {
		t.Fatalf("auto migrate kv_entries: %v", err)
	}
	return NewUnitOfWork(db), db
}

func insertKey(ctx context.Context, t *testing.T, key string) error {
	t.Helper()

	tx, ok := ports.TxFromContext(ctx).(*gorm.DB)
	if !ok {
		t.Fatalf("tx missing from context")
	}
	return tx.Create(&model.KVEntry{Key: key, Value: "v", UpdatedAt: "2026-03-01T00:00:00Z"}).Error
}

func TestWithTxRollsBackOnError(t *testing.T) {
	unit, db := setupUnitOfWork(t)
	boom := errors.New("boom")

	err := unit.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertKey(ctx, t, "scheduler:last_run"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	var count int64
	if err := db.Model(&model.KVEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("row count = %d, want 0 after rollback", count)
	}
}

func TestWithTxNestedJoinsOuter(t *testing.T) {
	unit, db := setupUnitOfWork(t)

	err := unit.WithTx(context.Background(), func(outer context.Context) error {
		outerTx := ports.TxFromContext(outer)
		return unit.WithTx(outer, func(inner context.Context) error {
			if ports.TxFromContext(inner) != outerTx {
				t.Fatalf("nested WithTx opened a new transaction")
			}
			return insertKey(inner, t, "k1")
		})
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var count int64
	if err := db.Model(&model.KVEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}
}
