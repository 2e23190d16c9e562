package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"ncrflow/internal/ports"
)

// dbFromContext prefers the transaction stored by the unit of work.
func dbFromContext(base *gorm.DB, ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return base.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// inTx runs fn on the context transaction, opening one when the caller
// did not.
func inTx(base *gorm.DB, ctx context.Context, fn func(ctx context.Context, db *gorm.DB) error) error {
	if ports.TxFromContext(ctx) != nil {
		db, err := dbFromContext(base, ctx)
		if err != nil {
			return err
		}
		return fn(ctx, db)
	}

	return base.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx), tx)
	})
}
