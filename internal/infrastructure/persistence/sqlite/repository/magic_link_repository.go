package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"ncrflow/internal/errs"
	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	"ncrflow/internal/ports"
)

type MagicLinkRepository struct {
	db *gorm.DB
}

var _ ports.MagicLinkRepository = (*MagicLinkRepository)(nil)

func NewMagicLinkRepository(db *gorm.DB) *MagicLinkRepository {
	return &MagicLinkRepository{db: db}
}

func (r *MagicLinkRepository) CreateMagicLink(ctx context.Context, record ports.MagicLinkRecord) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	row := model.MagicLink{
		LinkID:       record.LinkID,
		NCRID:        record.NCRID,
		SupplierID:   record.SupplierID,
		SecretSalt:   record.SecretSalt,
		SecretDigest: record.SecretDigest,
		CreatedBy:    record.CreatedBy,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert magic link")
	}
	return nil
}

func (r *MagicLinkRepository) GetMagicLink(ctx context.Context, linkID string) (ports.MagicLinkRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.MagicLinkRecord{}, err
	}
	return getMagicLink(db, linkID)
}

func (r *MagicLinkRepository) ListMagicLinks(ctx context.Context, ncrID string) ([]ports.MagicLinkRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.MagicLink
	if err := db.Where("ncr_id = ?", ncrID).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query magic links")
	}

	items := make([]ports.MagicLinkRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapMagicLink(row))
	}
	return items, nil
}

func (r *MagicLinkRepository) MarkViewed(ctx context.Context, linkID string, viewedAt string) (bool, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.MagicLink{}).
		Where("link_id = ? AND viewed_at IS NULL", linkID).
		Update("viewed_at", viewedAt)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "mark magic link viewed")
	}
	return result.RowsAffected > 0, nil
}

func (r *MagicLinkRepository) RecordAction(ctx context.Context, linkID string, at string) (ports.MagicLinkRecord, error) {
	var updated ports.MagicLinkRecord
	err := inTx(r.db, ctx, func(_ context.Context, db *gorm.DB) error {
		result := db.Model(&model.MagicLink{}).
			Where("link_id = ?", linkID).
			Updates(map[string]any{
				"action_count": gorm.Expr("action_count + 1"),
				"responded_at": gorm.Expr("COALESCE(responded_at, ?)", at),
				"viewed_at":    gorm.Expr("COALESCE(viewed_at, ?)", at),
			})
		if result.Error != nil {
			return errs.Wrap(result.Error, "record magic link action")
		}
		if result.RowsAffected == 0 {
			return ports.ErrMagicLinkNotFound
		}

		record, err := getMagicLink(db, linkID)
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return ports.MagicLinkRecord{}, err
	}
	return updated, nil
}

func (r *MagicLinkRepository) Revoke(ctx context.Context, linkID string, revokedAt string) (bool, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.MagicLink{}).
		Where("link_id = ? AND revoked_at IS NULL", linkID).
		Update("revoked_at", revokedAt)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "revoke magic link")
	}
	return result.RowsAffected > 0, nil
}

func getMagicLink(db *gorm.DB, linkID string) (ports.MagicLinkRecord, error) {
	var row model.MagicLink
	if err := db.Where("link_id = ?", strings.TrimSpace(linkID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.MagicLinkRecord{}, ports.ErrMagicLinkNotFound
		}
		return ports.MagicLinkRecord{}, errs.Wrap(err, "query magic link")
	}
	return mapMagicLink(row), nil
}

func mapMagicLink(row model.MagicLink) ports.MagicLinkRecord {
	return ports.MagicLinkRecord{
		LinkID:       row.LinkID,
		NCRID:        row.NCRID,
		SupplierID:   row.SupplierID,
		SecretSalt:   row.SecretSalt,
		SecretDigest: row.SecretDigest,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		ExpiresAt:    row.ExpiresAt,
		ViewedAt:     row.ViewedAt,
		RespondedAt:  row.RespondedAt,
		ActionCount:  row.ActionCount,
		RevokedAt:    row.RevokedAt,
	}
}
