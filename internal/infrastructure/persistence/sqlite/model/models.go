package model

// All lists every table the NCR engine migrates, in dependency order.
func All() []any {
	return []any{
		&Supplier{},
		&Project{},
		&PurchaseOrder{},
		&NCR{},
		&Comment{},
		&MagicLink{},
		&AuditEntry{},
		&EscalationMarker{},
		&NotificationOutbox{},
		&KVEntry{},
	}
}
