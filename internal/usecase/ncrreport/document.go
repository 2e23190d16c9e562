package ncrreport

import "ncrflow/internal/usecase/ncr"

type document struct {
	Number          string            `yaml:"number"`
	Title           string            `yaml:"title"`
	Status          string            `yaml:"status"`
	Severity        string            `yaml:"severity"`
	IssueType       string            `yaml:"issue_type"`
	PurchaseOrderID string            `yaml:"purchase_order_id"`
	SupplierID      string            `yaml:"supplier_id"`
	ReporterID      string            `yaml:"reporter_id"`
	AssigneeID      string            `yaml:"assignee_id,omitempty"`
	SLADueAt        string            `yaml:"sla_due_at"`
	Overdue         bool              `yaml:"overdue"`
	ClosedAt        string            `yaml:"closed_at,omitempty"`
	ClosedBy        string            `yaml:"closed_by,omitempty"`
	Reason          string            `yaml:"closed_reason,omitempty"`
	Comments        []documentComment `yaml:"comments"`
	MagicLinks      []documentLink    `yaml:"magic_links"`
	Escalations     []documentLevel   `yaml:"escalations,omitempty"`
	AuditTrail      []documentAudit   `yaml:"audit_trail"`
	GeneratedAt     string            `yaml:"generated_at"`
}

type documentComment struct {
	Author      string   `yaml:"author"`
	Role        string   `yaml:"role"`
	Content     string   `yaml:"content,omitempty"`
	Internal    bool     `yaml:"internal"`
	Attachments []string `yaml:"attachments,omitempty"`
	CreatedAt   string   `yaml:"created_at"`
}

type documentLink struct {
	LinkID      string `yaml:"link_id"`
	SupplierID  string `yaml:"supplier_id"`
	ExpiresAt   string `yaml:"expires_at"`
	ViewedAt    string `yaml:"viewed_at,omitempty"`
	RespondedAt string `yaml:"responded_at,omitempty"`
	ActionCount int64  `yaml:"action_count"`
	RevokedAt   string `yaml:"revoked_at,omitempty"`
}

type documentLevel struct {
	Level     int    `yaml:"level"`
	Recipient string `yaml:"recipient"`
	CreatedAt string `yaml:"created_at"`
}

type documentAudit struct {
	ID        uint64         `yaml:"id"`
	Actor     string         `yaml:"actor"`
	Action    string         `yaml:"action"`
	Details   map[string]any `yaml:"details,omitempty"`
	CreatedAt string         `yaml:"created_at"`
}

func toDocument(export ncr.NCRExport) document {
	view := export.NCR
	doc := document{
		Number:          view.Number,
		Title:           view.Title,
		Status:          view.Status,
		Severity:        view.Severity,
		IssueType:       view.IssueType,
		PurchaseOrderID: view.PurchaseOrderID,
		SupplierID:      view.SupplierID,
		ReporterID:      view.ReporterID,
		AssigneeID:      view.AssigneeID,
		SLADueAt:        view.SLADueAt,
		Overdue:         view.Overdue,
		ClosedAt:        view.ClosedAt,
		ClosedBy:        view.ClosedBy,
		Reason:          view.ClosedReason,
		Comments:        make([]documentComment, 0, len(export.Comments)),
		MagicLinks:      make([]documentLink, 0, len(export.MagicLinks)),
		AuditTrail:      make([]documentAudit, 0, len(export.AuditTrail)),
		GeneratedAt:     export.GeneratedAt,
	}
	for _, comment := range export.Comments {
		doc.Comments = append(doc.Comments, documentComment{
			Author:      firstNonEmpty(comment.AuthorUserID, comment.AuthorMagicLinkID),
			Role:        comment.AuthorRole,
			Content:     comment.Content,
			Internal:    comment.IsInternal,
			Attachments: comment.AttachmentURLs,
			CreatedAt:   comment.CreatedAt,
		})
	}
	for _, link := range export.MagicLinks {
		doc.MagicLinks = append(doc.MagicLinks, documentLink{
			LinkID:      link.LinkID,
			SupplierID:  link.SupplierID,
			ExpiresAt:   link.ExpiresAt,
			ViewedAt:    link.ViewedAt,
			RespondedAt: link.RespondedAt,
			ActionCount: link.ActionCount,
			RevokedAt:   link.RevokedAt,
		})
	}
	for _, escalation := range export.Escalations {
		doc.Escalations = append(doc.Escalations, documentLevel(escalation))
	}
	for _, entry := range export.AuditTrail {
		doc.AuditTrail = append(doc.AuditTrail, documentAudit(entry))
	}
	return doc
}
