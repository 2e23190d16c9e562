package model

// AuditEntry rows are append-only; no code path updates or deletes them.
type AuditEntry struct {
	AuditID     uint64 `gorm:"column:audit_id;primaryKey;autoIncrement"`
	EntityType  string `gorm:"column:entity_type;type:text;not null"`
	EntityID    string `gorm:"column:entity_id;type:text;not null;index"`
	Actor       string `gorm:"column:actor;type:text;not null"`
	Action      string `gorm:"column:action;type:text;not null"`
	DetailsJSON string `gorm:"column:details_json;type:text;not null"`
	CreatedAt   string `gorm:"column:created_at;type:text;not null"`
}

func (AuditEntry) TableName() string {
	return "audit_log"
}
