package ports

import (
	"context"
	"errors"
)

var ErrMagicLinkNotFound = errors.New("magic link not found")

type MagicLinkRecord struct {
	LinkID       string
	NCRID        string
	SupplierID   string
	SecretSalt   string
	SecretDigest string
	CreatedBy    string
	CreatedAt    string
	ExpiresAt    string
	ViewedAt     *string
	RespondedAt  *string
	ActionCount  int64
	RevokedAt    *string
}

type MagicLinkRepository interface {
	CreateMagicLink(ctx context.Context, record MagicLinkRecord) error
	GetMagicLink(ctx context.Context, linkID string) (MagicLinkRecord, error)
	ListMagicLinks(ctx context.Context, ncrID string) ([]MagicLinkRecord, error)
	// MarkViewed sets viewed_at only while it is still empty.
	MarkViewed(ctx context.Context, linkID string, viewedAt string) (bool, error)
	// RecordAction bumps action_count and sets responded_at on first use.
	RecordAction(ctx context.Context, linkID string, at string) (MagicLinkRecord, error)
	Revoke(ctx context.Context, linkID string, revokedAt string) (bool, error)
}
