package model

type MagicLink struct {
	LinkID       string  `gorm:"column:link_id;type:text;primaryKey"`
	NCRID        string  `gorm:"column:ncr_id;type:text;not null;index"`
	SupplierID   string  `gorm:"column:supplier_id;type:text;not null"`
	SecretSalt   string  `gorm:"column:secret_salt;type:text;not null"`
	SecretDigest string  `gorm:"column:secret_digest;type:text;not null"`
	CreatedBy    string  `gorm:"column:created_by;type:text;not null"`
	CreatedAt    string  `gorm:"column:created_at;type:text;not null"`
	ExpiresAt    string  `gorm:"column:expires_at;type:text;not null"`
	ViewedAt     *string `gorm:"column:viewed_at;type:text"`
	RespondedAt  *string `gorm:"column:responded_at;type:text"`
	ActionCount  int64   `gorm:"column:action_count;not null;default:0"`
	RevokedAt    *string `gorm:"column:revoked_at;type:text"`
}

func (MagicLink) TableName() string {
	return "ncr_magic_links"
}
