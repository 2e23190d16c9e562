package model

// NotificationOutbox holds notifications written together with the state
// change that produced them. SentAt stays nil until the relay hands the row
// to the notifier.
type NotificationOutbox struct {
	OutboxID    uint64  `gorm:"column:outbox_id;primaryKey;autoIncrement"`
	NCRID       string  `gorm:"column:ncr_id;type:text;not null;index:idx_outbox_ncr"`
	NCRNumber   string  `gorm:"column:ncr_number;type:text;not null"`
	Kind        string  `gorm:"column:kind;type:text;not null"`
	Recipient   string  `gorm:"column:recipient;type:text;not null"`
	PayloadJSON string  `gorm:"column:payload_json;type:text;not null"`
	OccurredAt  string  `gorm:"column:occurred_at;type:text;not null"`
	Attempts    int     `gorm:"column:attempts;not null;default:0"`
	SentAt      *string `gorm:"column:sent_at;type:text;index:idx_outbox_pending"`
}

func (NotificationOutbox) TableName() string {
	return "ncr_notification_outbox"
}
