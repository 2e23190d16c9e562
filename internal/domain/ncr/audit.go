package ncr

type AuditAction string

const (
	AuditCreated            AuditAction = "CREATED"
	AuditStatusChanged      AuditAction = "STATUS_CHANGED"
	AuditClosed             AuditAction = "CLOSED"
	AuditReopened           AuditAction = "REOPENED"
	AuditCommentAdded       AuditAction = "COMMENT_ADDED"
	AuditMagicLinkCreated   AuditAction = "MAGIC_LINK_CREATED"
	AuditMagicLinkRevoked   AuditAction = "MAGIC_LINK_REVOKED"
	AuditMagicLinkResponded AuditAction = "MAGIC_LINK_RESPONDED"
	AuditEscalated          AuditAction = "ESCALATED"
)

const EntityTypeNCR = "NCR"

type NotificationKind string

const (
	NotifyCreated   NotificationKind = "CREATED"
	NotifyResponded NotificationKind = "RESPONDED"
	NotifyEscalated NotificationKind = "ESCALATED"
	NotifyClosed    NotificationKind = "CLOSED"
)
