package model

type NCR struct {
	Seq                uint64  `gorm:"column:seq;primaryKey;autoIncrement"`
	NCRID              string  `gorm:"column:ncr_id;type:text;not null;uniqueIndex"`
	OrganizationID     string  `gorm:"column:organization_id;type:text;not null;index"`
	ProjectID          string  `gorm:"column:project_id;type:text;not null"`
	PurchaseOrderID    string  `gorm:"column:purchase_order_id;type:text;not null;index"`
	SupplierID         string  `gorm:"column:supplier_id;type:text;not null"`
	AffectedBoqItemID  *string `gorm:"column:affected_boq_item_id;type:text"`
	BatchID            *string `gorm:"column:batch_id;type:text"`
	SourceDocumentID   *string `gorm:"column:source_document_id;type:text"`
	QAInspectionTaskID *string `gorm:"column:qa_inspection_task_id;type:text"`

	Title       string `gorm:"column:title;type:text;not null"`
	Description string `gorm:"column:description;type:text;not null"`
	IssueType   string `gorm:"column:issue_type;type:text;not null"`
	Severity    string `gorm:"column:severity;type:text;not null;index"`
	Status      string `gorm:"column:status;type:text;not null;index"`

	ReporterID string  `gorm:"column:reporter_id;type:text;not null"`
	AssigneeID *string `gorm:"column:assignee_id;type:text"`
	ClosedBy   *string `gorm:"column:closed_by;type:text"`

	RequiresCreditNote   bool    `gorm:"column:requires_credit_note;not null;default:false"`
	ClosedReason         *string `gorm:"column:closed_reason;type:text"`
	ProofOfFixDocumentID *string `gorm:"column:proof_of_fix_document_id;type:text"`
	CreditNoteDocumentID *string `gorm:"column:credit_note_document_id;type:text"`

	CreatedAt  string  `gorm:"column:created_at;type:text;not null"`
	UpdatedAt  string  `gorm:"column:updated_at;type:text;not null"`
	SLADueAt   string  `gorm:"column:sla_due_at;type:text;not null"`
	ClosedAt   *string `gorm:"column:closed_at;type:text"`
	ReopenedAt *string `gorm:"column:reopened_at;type:text"`
	Version    uint64  `gorm:"column:version;not null;default:1"`
}

func (NCR) TableName() string {
	return "ncrs"
}
