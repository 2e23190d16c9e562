package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ncrflow/internal/errs"
	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	"ncrflow/internal/ports"
)

const statusClosed = "CLOSED"

type NCRRepository struct {
	db *gorm.DB
}

var _ ports.NCRRepository = (*NCRRepository)(nil)

func NewNCRRepository(db *gorm.DB) *NCRRepository {
	return &NCRRepository{db: db}
}

func (r *NCRRepository) GetNCR(ctx context.Context, ncrID string) (ports.NCRRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.NCRRecord{}, err
	}
	return takeNCR(db.Where("ncr_id = ?", strings.TrimSpace(ncrID)))
}

func (r *NCRRepository) GetNCRBySeq(ctx context.Context, seq uint64) (ports.NCRRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.NCRRecord{}, err
	}
	return takeNCR(db.Where("seq = ?", seq))
}

func (r *NCRRepository) ListNCRs(ctx context.Context, filter ports.NCRFilter) ([]ports.NCRRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.NCR{})
	if org := strings.TrimSpace(filter.OrganizationID); org != "" {
		query = query.Where("organization_id = ?", org)
	}
	if po := strings.TrimSpace(filter.PurchaseOrderID); po != "" {
		query = query.Where("purchase_order_id = ?", po)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	} else if !filter.IncludeClosed {
		query = query.Where("status <> ?", statusClosed)
	}

	var rows []model.NCR
	if err := query.Order("seq asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query ncrs")
	}

	items := make([]ports.NCRRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNCR(row))
	}
	return items, nil
}

func (r *NCRRepository) CountNCRs(ctx context.Context, organizationID string) (ports.NCRCounts, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.NCRCounts{}, err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := db.Model(&model.NCR{}).
		Select("status, count(*) as count").
		Where("organization_id = ?", organizationID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return ports.NCRCounts{}, errs.Wrap(err, "count ncrs by status")
	}

	out := ports.NCRCounts{ByStatus: make(map[string]int64, len(rows))}
	for _, row := range rows {
		out.ByStatus[row.Status] = row.Count
		out.Total += row.Count
	}

	if err := db.Model(&model.NCR{}).
		Where("organization_id = ? AND severity = ?", organizationID, "CRITICAL").
		Count(&out.Critical).Error; err != nil {
		return ports.NCRCounts{}, errs.Wrap(err, "count critical ncrs")
	}
	return out, nil
}

func (r *NCRRepository) ListComments(ctx context.Context, ncrID string, includeInternal bool) ([]ports.CommentRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	query := db.Where("ncr_id = ?", ncrID)
	if !includeInternal {
		query = query.Where("is_internal = ?", false)
	}

	var rows []model.Comment
	if err := query.Order("seq asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query comments")
	}

	items := make([]ports.CommentRecord, 0, len(rows))
	for _, row := range rows {
		item, err := mapComment(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *NCRRepository) ListAuditEntries(ctx context.Context, entityID string) ([]ports.AuditEntry, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.AuditEntry
	if err := db.Where("entity_id = ?", entityID).Order("audit_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query audit entries")
	}

	items := make([]ports.AuditEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.AuditEntry{
			AuditID:     row.AuditID,
			EntityType:  row.EntityType,
			EntityID:    row.EntityID,
			Actor:       row.Actor,
			Action:      row.Action,
			DetailsJSON: row.DetailsJSON,
			CreatedAt:   row.CreatedAt,
		})
	}
	return items, nil
}

func (r *NCRRepository) ListEscalations(ctx context.Context, ncrID string) ([]ports.EscalationMarker, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.EscalationMarker
	if err := db.Where("ncr_id = ?", ncrID).Order("level asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query escalation markers")
	}

	items := make([]ports.EscalationMarker, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.EscalationMarker{
			NCRID:     row.NCRID,
			Level:     row.Level,
			Recipient: row.Recipient,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

func (r *NCRRepository) CreateNCR(ctx context.Context, record ports.NCRRecord) (ports.NCRRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.NCRRecord{}, err
	}

	row := model.NCR{
		NCRID:                record.NCRID,
		OrganizationID:       record.OrganizationID,
		ProjectID:            record.ProjectID,
		PurchaseOrderID:      record.PurchaseOrderID,
		SupplierID:           record.SupplierID,
		AffectedBoqItemID:    record.AffectedBoqItemID,
		BatchID:              record.BatchID,
		SourceDocumentID:     record.SourceDocumentID,
		QAInspectionTaskID:   record.QAInspectionTaskID,
		Title:                record.Title,
		Description:          record.Description,
		IssueType:            record.IssueType,
		Severity:             record.Severity,
		Status:               record.Status,
		ReporterID:           record.ReporterID,
		AssigneeID:           record.AssigneeID,
		RequiresCreditNote:   record.RequiresCreditNote,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
		SLADueAt:             record.SLADueAt,
		Version:              1,
		ProofOfFixDocumentID: record.ProofOfFixDocumentID,
		CreditNoteDocumentID: record.CreditNoteDocumentID,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.NCRRecord{}, errs.Wrap(err, "insert ncr")
	}
	return mapNCR(row), nil
}

func (r *NCRRepository) UpdateStatus(ctx context.Context, change ports.NCRStatusChange) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.NCR{}).
		Where("ncr_id = ? AND status = ? AND version = ?", change.NCRID, change.FromStatus, change.FromVersion).
		Updates(map[string]any{
			"status":     change.ToStatus,
			"updated_at": change.UpdatedAt,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update ncr status")
	}
	if result.RowsAffected == 0 {
		return ports.ErrStaleNCR
	}
	return nil
}

func (r *NCRRepository) MarkClosed(ctx context.Context, input ports.NCRClose) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.NCR{}).
		Where("ncr_id = ? AND status = ? AND version = ?", input.NCRID, input.FromStatus, input.FromVersion).
		Updates(map[string]any{
			"status":                   statusClosed,
			"closed_by":                input.ClosedBy,
			"closed_reason":            input.ClosedReason,
			"closed_at":                input.ClosedAt,
			"proof_of_fix_document_id": input.ProofOfFixDocumentID,
			"credit_note_document_id":  input.CreditNoteDocumentID,
			"updated_at":               input.ClosedAt,
			"version":                  gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "close ncr")
	}
	if result.RowsAffected == 0 {
		return ports.ErrStaleNCR
	}
	return nil
}

func (r *NCRRepository) MarkReopened(ctx context.Context, input ports.NCRReopen) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	result := db.Model(&model.NCR{}).
		Where("ncr_id = ? AND status = ? AND version = ?", input.NCRID, statusClosed, input.FromVersion).
		Updates(map[string]any{
			"status":                   "OPEN",
			"closed_by":                nil,
			"closed_reason":            nil,
			"closed_at":                nil,
			"proof_of_fix_document_id": nil,
			"credit_note_document_id":  nil,
			"reopened_at":              input.ReopenedAt,
			"updated_at":               input.ReopenedAt,
			"version":                  gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "reopen ncr")
	}
	if result.RowsAffected == 0 {
		return ports.ErrStaleNCR
	}
	return nil
}

func (r *NCRRepository) AppendComment(ctx context.Context, record ports.CommentRecord) (ports.CommentRecord, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.CommentRecord{}, err
	}

	attachments := record.AttachmentURLs
	if attachments == nil {
		attachments = []string{}
	}
	rawAttachments, err := json.Marshal(attachments)
	if err != nil {
		return ports.CommentRecord{}, errs.Wrap(err, "encode attachment urls")
	}

	row := model.Comment{
		CommentID:          record.CommentID,
		NCRID:              record.NCRID,
		AuthorUserID:       record.AuthorUserID,
		AuthorMagicLinkID:  record.AuthorMagicLinkID,
		AuthorRole:         record.AuthorRole,
		Content:            record.Content,
		IsInternal:         record.IsInternal,
		AttachmentURLsJSON: string(rawAttachments),
		VoiceNoteURL:       record.VoiceNoteURL,
		CreatedAt:          record.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.CommentRecord{}, errs.Wrap(err, "insert comment")
	}
	return mapComment(row)
}

func (r *NCRRepository) AppendAudit(ctx context.Context, input ports.AuditEntryCreate) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	details := strings.TrimSpace(input.DetailsJSON)
	if details == "" {
		details = "{}"
	}
	row := model.AuditEntry{
		EntityType:  input.EntityType,
		EntityID:    input.EntityID,
		Actor:       input.Actor,
		Action:      input.Action,
		DetailsJSON: details,
		CreatedAt:   input.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert audit entry")
	}
	return nil
}

func (r *NCRRepository) ClaimEscalation(ctx context.Context, marker ports.EscalationMarker) (bool, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return false, err
	}

	row := model.EscalationMarker{
		NCRID:     marker.NCRID,
		Level:     marker.Level,
		Recipient: marker.Recipient,
		CreatedAt: marker.CreatedAt,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ncr_id"}, {Name: "level"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "insert escalation marker")
	}
	return result.RowsAffected > 0, nil
}

func (r *NCRRepository) EnqueueNotification(ctx context.Context, pending ports.PendingNotification) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	payload := strings.TrimSpace(pending.PayloadJSON)
	if payload == "" {
		payload = "{}"
	}
	row := model.NotificationOutbox{
		NCRID:       pending.NCRID,
		NCRNumber:   pending.NCRNumber,
		Kind:        pending.Kind,
		Recipient:   pending.Recipient,
		PayloadJSON: payload,
		OccurredAt:  pending.OccurredAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert notification outbox row")
	}
	return nil
}

func (r *NCRRepository) ListPendingNotifications(ctx context.Context, limit int) ([]ports.PendingNotification, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return nil, err
	}

	query := db.Where("sent_at IS NULL").Order("outbox_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []model.NotificationOutbox
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query pending notifications")
	}

	items := make([]ports.PendingNotification, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.PendingNotification{
			OutboxID:    row.OutboxID,
			NCRID:       row.NCRID,
			NCRNumber:   row.NCRNumber,
			Kind:        row.Kind,
			Recipient:   row.Recipient,
			PayloadJSON: row.PayloadJSON,
			OccurredAt:  row.OccurredAt,
			Attempts:    row.Attempts,
		})
	}
	return items, nil
}

func (r *NCRRepository) MarkNotificationSent(ctx context.Context, outboxID uint64, sentAt string) (bool, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.NotificationOutbox{}).
		Where("outbox_id = ? AND sent_at IS NULL", outboxID).
		Updates(map[string]any{
			"sent_at":  sentAt,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "mark notification sent")
	}
	return result.RowsAffected > 0, nil
}

func (r *NCRRepository) ReleaseNotification(ctx context.Context, outboxID uint64) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.NotificationOutbox{}).
		Where("outbox_id = ?", outboxID).
		Update("sent_at", nil).Error; err != nil {
		return errs.Wrap(err, "release notification")
	}
	return nil
}

func takeNCR(query *gorm.DB) (ports.NCRRecord, error) {
	var row model.NCR
	if err := query.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.NCRRecord{}, ports.ErrNCRNotFound
		}
		return ports.NCRRecord{}, errs.Wrap(err, "query ncr")
	}
	return mapNCR(row), nil
}

func mapNCR(row model.NCR) ports.NCRRecord {
	return ports.NCRRecord{
		NCRID:                row.NCRID,
		Seq:                  row.Seq,
		OrganizationID:       row.OrganizationID,
		ProjectID:            row.ProjectID,
		PurchaseOrderID:      row.PurchaseOrderID,
		SupplierID:           row.SupplierID,
		AffectedBoqItemID:    row.AffectedBoqItemID,
		BatchID:              row.BatchID,
		SourceDocumentID:     row.SourceDocumentID,
		QAInspectionTaskID:   row.QAInspectionTaskID,
		Title:                row.Title,
		Description:          row.Description,
		IssueType:            row.IssueType,
		Severity:             row.Severity,
		Status:               row.Status,
		ReporterID:           row.ReporterID,
		AssigneeID:           row.AssigneeID,
		ClosedBy:             row.ClosedBy,
		RequiresCreditNote:   row.RequiresCreditNote,
		ClosedReason:         row.ClosedReason,
		ProofOfFixDocumentID: row.ProofOfFixDocumentID,
		CreditNoteDocumentID: row.CreditNoteDocumentID,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
		SLADueAt:             row.SLADueAt,
		ClosedAt:             row.ClosedAt,
		ReopenedAt:           row.ReopenedAt,
		Version:              row.Version,
	}
}

func mapComment(row model.Comment) (ports.CommentRecord, error) {
	var attachments []string
	if strings.TrimSpace(row.AttachmentURLsJSON) != "" {
		if err := json.Unmarshal([]byte(row.AttachmentURLsJSON), &attachments); err != nil {
			return ports.CommentRecord{}, errs.Wrapf(err, "decode attachment urls of comment %s", row.CommentID)
		}
	}
	return ports.CommentRecord{
		CommentID:         row.CommentID,
		Seq:               row.Seq,
		NCRID:             row.NCRID,
		AuthorUserID:      row.AuthorUserID,
		AuthorMagicLinkID: row.AuthorMagicLinkID,
		AuthorRole:        row.AuthorRole,
		Content:           row.Content,
		IsInternal:        row.IsInternal,
		AttachmentURLs:    attachments,
		VoiceNoteURL:      row.VoiceNoteURL,
		CreatedAt:         row.CreatedAt,
	}, nil
}
