package ncr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

func appendAuditTx(ctx context.Context, repo ports.NCRRepository, ncrID string, actor string, action domainncr.AuditAction, details map[string]any, createdAt string) error {
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return errs.Wrap(err, "encode audit details")
	}
	return repo.AppendAudit(ctx, ports.AuditEntryCreate{
		EntityType:  domainncr.EntityTypeNCR,
		EntityID:    ncrID,
		Actor:       actor,
		Action:      string(action),
		DetailsJSON: string(raw),
		CreatedAt:   createdAt,
	})
}

// resolveNCR accepts either the NCR id or its NCR-0001 style number.
func resolveNCR(ctx context.Context, repo ports.NCRReadRepository, ref string) (ports.NCRRecord, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return ports.NCRRecord{}, errs.Kindf(domainncr.ErrValidation, "ncr id is required")
	}

	var (
		record ports.NCRRecord
		err    error
	)
	if domainncr.LooksLikeNumber(trimmed) {
		seq, parseErr := domainncr.ParseNumber(trimmed)
		if parseErr != nil {
			return ports.NCRRecord{}, parseErr
		}
		record, err = repo.GetNCRBySeq(ctx, seq)
	} else {
		record, err = repo.GetNCR(ctx, trimmed)
	}
	if err != nil {
		if errors.Is(err, ports.ErrNCRNotFound) {
			return ports.NCRRecord{}, errs.Kindf(domainncr.ErrNotFound, "ncr %s", trimmed)
		}
		return ports.NCRRecord{}, err
	}
	return record, nil
}

// conflictOrErr maps a lost optimistic write onto ConflictError.
func conflictOrErr(err error, ncrID string) error {
	if errors.Is(err, ports.ErrStaleNCR) {
		return errs.Kindf(domainncr.ErrConflict, "ncr %s was modified concurrently, retry with fresh state", ncrID)
	}
	return err
}

// staffRecipient picks who hears about an NCR: assignee, then project owner,
// then reporter.
func (s *Service) staffRecipient(ctx context.Context, record ports.NCRRecord) string {
	if assignee := strings.TrimSpace(derefString(record.AssigneeID)); assignee != "" {
		return assignee
	}
	if s.refs != nil {
		project, err := s.refs.GetProject(ctx, record.ProjectID)
		if err == nil && strings.TrimSpace(project.OwnerUserID) != "" {
			return project.OwnerUserID
		}
	}
	return record.ReporterID
}

// notifyBestEffort hands an event to the notifier after the write committed.
// A rejected event is logged; the committed state stands.
func (s *Service) notifyBestEffort(ctx context.Context, record ports.NCRRecord, kind domainncr.NotificationKind, data map[string]any) {
	if s.notifier == nil {
		return
	}
	event := ports.NotificationEvent{
		NCRID:      record.NCRID,
		NCRNumber:  domainncr.FormatNumber(record.Seq),
		Kind:       string(kind),
		Recipient:  s.staffRecipient(ctx, record),
		Data:       data,
		OccurredAt: formatTime(s.now()),
	}
	if err := s.notifier.Dispatch(ctx, event); err != nil {
		logging.Warn(ctx, "notification not accepted",
			slog.String("ncr_id", record.NCRID),
			slog.String("kind", string(kind)),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
