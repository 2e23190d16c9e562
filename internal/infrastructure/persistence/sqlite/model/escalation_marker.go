package model

type EscalationMarker struct {
	MarkerID  uint64 `gorm:"column:marker_id;primaryKey;autoIncrement"`
	NCRID     string `gorm:"column:ncr_id;type:text;not null;uniqueIndex:idx_escalation_ncr_level"`
	Level     int    `gorm:"column:level;not null;uniqueIndex:idx_escalation_ncr_level"`
	Recipient string `gorm:"column:recipient;type:text;not null"`
	CreatedAt string `gorm:"column:created_at;type:text;not null"`
}

func (EscalationMarker) TableName() string {
	return "ncr_escalation_markers"
}
