package ncr

import (
	"time"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/ports"
)

type NCRView struct {
	ID                 string `json:"id"`
	Number             string `json:"number"`
	OrganizationID     string `json:"organizationId"`
	ProjectID          string `json:"projectId"`
	PurchaseOrderID    string `json:"purchaseOrderId"`
	SupplierID         string `json:"supplierId"`
	AffectedBoqItemID  string `json:"affectedBoqItemId,omitempty"`
	BatchID            string `json:"batchId,omitempty"`
	SourceDocumentID   string `json:"sourceDocumentId,omitempty"`
	QAInspectionTaskID string `json:"qaInspectionTaskId,omitempty"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issueType"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`

	ReporterID string `json:"reporterId"`
	AssigneeID string `json:"assigneeId,omitempty"`
	ClosedBy   string `json:"closedBy,omitempty"`

	RequiresCreditNote   bool   `json:"requiresCreditNote"`
	ClosedReason         string `json:"closedReason,omitempty"`
	ProofOfFixDocumentID string `json:"proofOfFixDocumentId,omitempty"`
	CreditNoteDocumentID string `json:"creditNoteDocumentId,omitempty"`

	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	SLADueAt   string `json:"slaDueAt"`
	ClosedAt   string `json:"closedAt,omitempty"`
	ReopenedAt string `json:"reopenedAt,omitempty"`
	Overdue    bool   `json:"overdue"`
	Version    uint64 `json:"version"`
}

type CommentView struct {
	ID                string   `json:"id"`
	AuthorUserID      string   `json:"authorUserId,omitempty"`
	AuthorMagicLinkID string   `json:"authorMagicLinkId,omitempty"`
	AuthorRole        string   `json:"authorRole"`
	Content           string   `json:"content,omitempty"`
	IsInternal        bool     `json:"isInternal"`
	AttachmentURLs    []string `json:"attachmentUrls,omitempty"`
	VoiceNoteURL      string   `json:"voiceNoteUrl,omitempty"`
	CreatedAt         string   `json:"createdAt"`
}

type NCRDetail struct {
	NCR      NCRView       `json:"ncr"`
	Comments []CommentView `json:"comments"`
}

type MagicLinkActivity struct {
	LinkID      string `json:"linkId"`
	SupplierID  string `json:"supplierId"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
	ExpiresAt   string `json:"expiresAt"`
	ViewedAt    string `json:"viewedAt,omitempty"`
	RespondedAt string `json:"respondedAt,omitempty"`
	ActionCount int64  `json:"actionCount"`
	RevokedAt   string `json:"revokedAt,omitempty"`
}

type AuditView struct {
	ID        uint64         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt string         `json:"createdAt"`
}

type EscalationView struct {
	Level     int    `json:"level"`
	Recipient string `json:"recipient"`
	CreatedAt string `json:"createdAt"`
}

// NCRExport is the full record used by reports.
type NCRExport struct {
	NCR         NCRView             `json:"ncr"`
	Comments    []CommentView       `json:"comments"`
	MagicLinks  []MagicLinkActivity `json:"magicLinks"`
	Escalations []EscalationView    `json:"escalations"`
	AuditTrail  []AuditView         `json:"auditTrail"`
	GeneratedAt string              `json:"generatedAt"`
}

func toNCRView(record ports.NCRRecord, now time.Time) NCRView {
	overdue := false
	if due, err := parseTime(record.SLADueAt); err == nil {
		overdue = domainncr.IsOverdue(domainncr.Status(record.Status), due, now)
	}
	return NCRView{
		ID:                   record.NCRID,
		Number:               domainncr.FormatNumber(record.Seq),
		OrganizationID:       record.OrganizationID,
		ProjectID:            record.ProjectID,
		PurchaseOrderID:      record.PurchaseOrderID,
		SupplierID:           record.SupplierID,
		AffectedBoqItemID:    derefString(record.AffectedBoqItemID),
		BatchID:              derefString(record.BatchID),
		SourceDocumentID:     derefString(record.SourceDocumentID),
		QAInspectionTaskID:   derefString(record.QAInspectionTaskID),
		Title:                record.Title,
		Description:          record.Description,
		IssueType:            record.IssueType,
		Severity:             record.Severity,
		Status:               record.Status,
		ReporterID:           record.ReporterID,
		AssigneeID:           derefString(record.AssigneeID),
		ClosedBy:             derefString(record.ClosedBy),
		RequiresCreditNote:   record.RequiresCreditNote,
		ClosedReason:         derefString(record.ClosedReason),
		ProofOfFixDocumentID: derefString(record.ProofOfFixDocumentID),
		CreditNoteDocumentID: derefString(record.CreditNoteDocumentID),
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
		SLADueAt:             record.SLADueAt,
		ClosedAt:             derefString(record.ClosedAt),
		ReopenedAt:           derefString(record.ReopenedAt),
		Overdue:              overdue,
		Version:              record.Version,
	}
}

func toCommentView(record ports.CommentRecord) CommentView {
	return CommentView{
		ID:                record.CommentID,
		AuthorUserID:      derefString(record.AuthorUserID),
		AuthorMagicLinkID: derefString(record.AuthorMagicLinkID),
		AuthorRole:        record.AuthorRole,
		Content:           record.Content,
		IsInternal:        record.IsInternal,
		AttachmentURLs:    record.AttachmentURLs,
		VoiceNoteURL:      derefString(record.VoiceNoteURL),
		CreatedAt:         record.CreatedAt,
	}
}

func toMagicLinkActivity(record ports.MagicLinkRecord) MagicLinkActivity {
	return MagicLinkActivity{
		LinkID:      record.LinkID,
		SupplierID:  record.SupplierID,
		CreatedBy:   record.CreatedBy,
		CreatedAt:   record.CreatedAt,
		ExpiresAt:   record.ExpiresAt,
		ViewedAt:    derefString(record.ViewedAt),
		RespondedAt: derefString(record.RespondedAt),
		ActionCount: record.ActionCount,
		RevokedAt:   derefString(record.RevokedAt),
	}
}
