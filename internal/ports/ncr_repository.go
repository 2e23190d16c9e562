package ports

import (
	"context"
	"errors"
)

var (
	ErrNCRNotFound = errors.New("ncr not found")
	// ErrStaleNCR means a conditional write matched no row because status or
	// version moved since the caller read it.
	ErrStaleNCR = errors.New("ncr changed concurrently")
)

type NCRFilter struct {
	OrganizationID  string
	PurchaseOrderID string
	Status          string
	IncludeClosed   bool
}

type NCRRecord struct {
	NCRID              string
	Seq                uint64
	OrganizationID     string
	ProjectID          string
	PurchaseOrderID    string
	SupplierID         string
	AffectedBoqItemID  *string
	BatchID            *string
	SourceDocumentID   *string
	QAInspectionTaskID *string

	Title       string
	Description string
	IssueType   string
	Severity    string
	Status      string

	ReporterID string
	AssigneeID *string
	ClosedBy   *string

	RequiresCreditNote   bool
	ClosedReason         *string
	ProofOfFixDocumentID *string
	CreditNoteDocumentID *string

	CreatedAt  string
	UpdatedAt  string
	SLADueAt   string
	ClosedAt   *string
	ReopenedAt *string
	Version    uint64
}

// NCRStatusChange is applied only when the stored row still carries
// FromStatus and FromVersion.
type NCRStatusChange struct {
	NCRID       string
	FromStatus  string
	FromVersion uint64
	ToStatus    string
	UpdatedAt   string
}

type NCRClose struct {
	NCRID                string
	FromStatus           string
	FromVersion          uint64
	ClosedBy             string
	ClosedReason         string
	ProofOfFixDocumentID *string
	CreditNoteDocumentID *string
	ClosedAt             string
}

type NCRReopen struct {
	NCRID       string
	FromVersion uint64
	ReopenedAt  string
}

type NCRCounts struct {
	Total    int64
	ByStatus map[string]int64
	Critical int64
}

type CommentRecord struct {
	CommentID         string
	Seq               uint64
	NCRID             string
	AuthorUserID      *string
	AuthorMagicLinkID *string
	AuthorRole        string
	Content           string
	IsInternal        bool
	AttachmentURLs    []string
	VoiceNoteURL      *string
	CreatedAt         string
}

type AuditEntry struct {
	AuditID     uint64
	EntityType  string
	EntityID    string
	Actor       string
	Action      string
	DetailsJSON string
	CreatedAt   string
}

type AuditEntryCreate struct {
	EntityType  string
	EntityID    string
	Actor       string
	Action      string
	DetailsJSON string
	CreatedAt   string
}

type EscalationMarker struct {
	NCRID     string
	Level     int
	Recipient string
	CreatedAt string
}

// PendingNotification is an outbox row not yet handed to the notifier.
type PendingNotification struct {
	OutboxID    uint64
	NCRID       string
	NCRNumber   string
	Kind        string
	Recipient   string
	PayloadJSON string
	OccurredAt  string
	Attempts    int
}

type NCRReadRepository interface {
	GetNCR(ctx context.Context, ncrID string) (NCRRecord, error)
	GetNCRBySeq(ctx context.Context, seq uint64) (NCRRecord, error)
	ListNCRs(ctx context.Context, filter NCRFilter) ([]NCRRecord, error)
	CountNCRs(ctx context.Context, organizationID string) (NCRCounts, error)
	ListComments(ctx context.Context, ncrID string, includeInternal bool) ([]CommentRecord, error)
	ListAuditEntries(ctx context.Context, entityID string) ([]AuditEntry, error)
	ListEscalations(ctx context.Context, ncrID string) ([]EscalationMarker, error)
}

type NCRRepository interface {
	NCRReadRepository
	CreateNCR(ctx context.Context, record NCRRecord) (NCRRecord, error)
	UpdateStatus(ctx context.Context, change NCRStatusChange) error
	MarkClosed(ctx context.Context, input NCRClose) error
	MarkReopened(ctx context.Context, input NCRReopen) error
	AppendComment(ctx context.Context, record CommentRecord) (CommentRecord, error)
	AppendAudit(ctx context.Context, input AuditEntryCreate) error
	// ClaimEscalation inserts the (ncr, level) marker and reports whether
	// this call was the one that inserted it.
	ClaimEscalation(ctx context.Context, marker EscalationMarker) (bool, error)

	EnqueueNotification(ctx context.Context, pending PendingNotification) error
	ListPendingNotifications(ctx context.Context, limit int) ([]PendingNotification, error)
	// MarkNotificationSent flips sent_at only while the row is still pending
	// and reports whether this call did it.
	MarkNotificationSent(ctx context.Context, outboxID uint64, sentAt string) (bool, error)
	// ReleaseNotification puts a claimed row back to pending after the
	// notifier rejected it.
	ReleaseNotification(ctx context.Context, outboxID uint64) error
}
