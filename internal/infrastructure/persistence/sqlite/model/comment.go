package model

// Comment rows are immutable once inserted.
type Comment struct {
	Seq                uint64  `gorm:"column:seq;primaryKey;autoIncrement"`
	CommentID          string  `gorm:"column:comment_id;type:text;not null;uniqueIndex"`
	NCRID              string  `gorm:"column:ncr_id;type:text;not null;index"`
	AuthorUserID       *string `gorm:"column:author_user_id;type:text"`
	AuthorMagicLinkID  *string `gorm:"column:author_magic_link_id;type:text"`
	AuthorRole         string  `gorm:"column:author_role;type:text;not null"`
	Content            string  `gorm:"column:content;type:text;not null"`
	IsInternal         bool    `gorm:"column:is_internal;not null;default:false;index"`
	AttachmentURLsJSON string  `gorm:"column:attachment_urls_json;type:text;not null"`
	VoiceNoteURL       *string `gorm:"column:voice_note_url;type:text"`
	CreatedAt          string  `gorm:"column:created_at;type:text;not null"`
}

func (Comment) TableName() string {
	return "ncr_comments"
}
