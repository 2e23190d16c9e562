package ncr

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/ports"
)

const (
	defaultLinkExpiry    = 72 * time.Hour
	defaultPerNCRTimeout = 10 * time.Second
)

// SchedulerLastRunKey holds the RFC3339 time of the last finished scan.
const SchedulerLastRunKey = "scheduler:last_run"

var (
	errRepoRequired = errors.New("ncr repository is required")
	errUOWRequired  = errors.New("ncr unit of work is required")
)

type Options struct {
	PortalBaseURL     string
	DefaultLinkExpiry time.Duration
	PerNCRTimeout     time.Duration
	DashboardTTL      time.Duration
}

type Service struct {
	repo     ports.NCRRepository
	links    ports.MagicLinkRepository
	refs     ports.ReferenceReadRepository
	uow      ports.UnitOfWork
	cache    ports.Cache
	notifier ports.Notifier
	policy   *PolicyHolder
	opts     Options
	validate *validator.Validate

	now   func() time.Time
	newID func() string
}

// NewService wires the NCR usecases. cache and notifier are optional; a nil
// policy holder falls back to DefaultPolicy.
func NewService(
	repo ports.NCRRepository,
	links ports.MagicLinkRepository,
	refs ports.ReferenceReadRepository,
	uow ports.UnitOfWork,
	cache ports.Cache,
	notifier ports.Notifier,
	policy *PolicyHolder,
	opts Options,
) *Service {
	if policy == nil {
		policy = NewPolicyHolder(DefaultPolicy())
	}
	if opts.DefaultLinkExpiry <= 0 {
		opts.DefaultLinkExpiry = defaultLinkExpiry
	}
	if opts.PerNCRTimeout <= 0 {
		opts.PerNCRTimeout = defaultPerNCRTimeout
	}
	return &Service{
		repo:     repo,
		links:    links,
		refs:     refs,
		uow:      uow,
		cache:    cache,
		notifier: notifier,
		policy:   policy,
		opts:     opts,
		validate: newInputValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Policy returns the workflow policy currently in effect.
func (s *Service) Policy() Policy {
	return s.policy.Current()
}

type CreateNCRInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	OrganizationID     string `json:"organizationId" validate:"required"`
	ProjectID          string `json:"projectId" validate:"required"`
	PurchaseOrderID    string `json:"purchaseOrderId" validate:"required"`
	SupplierID         string `json:"supplierId" validate:"required"`
	Title              string `json:"title" validate:"required,max=200"`
	Severity           string `json:"severity" validate:"required"`
	IssueType          string `json:"issueType" validate:"required,max=64"`
	ReporterID         string `json:"reporterId" validate:"required"`
	Description        string `json:"description,omitempty" validate:"max=10000"`
	AffectedBoqItemID  string `json:"affectedBoqItemId,omitempty"`
	BatchID            string `json:"batchId,omitempty"`
	QAInspectionTaskID string `json:"qaInspectionTaskId,omitempty"`
	SourceDocumentID   string `json:"sourceDocumentId,omitempty"`
	AssigneeID         string `json:"assigneeId,omitempty"`
	RequiresCreditNote *bool  `json:"requiresCreditNote,omitempty"`
}

type UpdateStatusInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	NCRRef string `json:"ncrId" validate:"required"`
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=2000"`
}

type CloseNCRInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	NCRRef               string `json:"ncrId" validate:"required"`
	ClosedReason         string `json:"closedReason" validate:"required,max=2000"`
	ProofOfFixDocumentID string `json:"proofOfFixDocId,omitempty"`
	CreditNoteDocumentID string `json:"creditNoteDocId,omitempty"`
}

type ReopenNCRInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	NCRRef string `json:"ncrId" validate:"required"`
	Reason string `json:"reason" validate:"required,max=2000"`
}

type ListNCRsInput struct {
	OrganizationID  string
	PurchaseOrderID string
	Status          string
	IncludeClosed   bool
}

// AddCommentInput carries exactly one author source: a staff Actor or a
// supplier MagicLinkToken.
type AddCommentInput struct {
	Actor          *domainncr.Actor `json:"-" validate:"-"`
	MagicLinkToken string           `json:"-" validate:"-"`

	NCRRef         string   `json:"ncrId,omitempty"`
	Content        string   `json:"content,omitempty" validate:"max=10000"`
	AttachmentURLs []string `json:"attachmentUrls,omitempty" validate:"omitempty,max=20,dive,url"`
	VoiceNoteURL   string   `json:"voiceNoteUrl,omitempty" validate:"omitempty,url"`
	IsInternal     bool     `json:"isInternal,omitempty"`
}

type CreateMagicLinkInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	NCRRef         string `json:"ncrId" validate:"required"`
	SupplierID     string `json:"supplierId" validate:"required"`
	ExpiresInHours int    `json:"expiresInHours,omitempty" validate:"min=0,max=720"`
}

type RevokeMagicLinkInput struct {
	Actor domainncr.Actor `json:"-" validate:"-"`

	LinkID string `json:"linkId" validate:"required"`
}

// MagicLinkIssued is returned once; the raw token is never readable again.
type MagicLinkIssued struct {
	LinkID    string `json:"linkId"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	URL       string `json:"url"`
}

// MagicLinkAccess is the scope a valid token grants and nothing more.
type MagicLinkAccess struct {
	NCRID      string `json:"ncrId"`
	SupplierID string `json:"supplierId"`
}

type EscalationSummary struct {
	Scanned          int `json:"scanned"`
	Overdue          int `json:"overdue"`
	Escalated        int `json:"escalated"`
	AlreadyEscalated int `json:"alreadyEscalated"`
	Failed           int `json:"failed"`
	Notified         int `json:"notified"`
	NotifyDeferred   int `json:"notifyDeferred"`
}

type Dashboard struct {
	OrganizationID string           `json:"organizationId"`
	TotalNCRs      int64            `json:"totalNCRs"`
	OpenNCRs       int64            `json:"openNCRs"`
	ClosedNCRs     int64            `json:"closedNCRs"`
	CriticalNCRs   int64            `json:"criticalNCRs"`
	OverdueNCRs    int64            `json:"overdueNCRs"`
	ByStatus       map[string]int64 `json:"byStatus"`
	NCRRate        float64          `json:"ncrRate"`
}

func (s *Service) checkWriteDeps() error {
	if s.repo == nil {
		return errRepoRequired
	}
	if s.uow == nil {
		return errUOWRequired
	}
	return nil
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, ttl)
}
