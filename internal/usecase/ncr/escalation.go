package ncr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

const relayBatchSize = 200

// RunEscalationScan evaluates every non-closed NCR against its SLA and emits
// at most one escalation per (NCR, level). It never changes status. A
// failure on one NCR is logged and counted; the scan continues.
func (s *Service) RunEscalationScan(ctx context.Context) (EscalationSummary, error) {
	if ctx == nil {
		return EscalationSummary{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return EscalationSummary{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return EscalationSummary{}, err
	}
	if s.notifier == nil {
		return EscalationSummary{}, errors.New("notifier is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.ncr.escalation"))
	records, err := s.repo.ListNCRs(ctx, ports.NCRFilter{IncludeClosed: false})
	if err != nil {
		return EscalationSummary{}, err
	}

	policy := s.policy.Current()
	windows := policy.Windows()
	now := s.now()

	var summary EscalationSummary
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return summary, errs.Wrap(err, "escalation scan interrupted")
		}
		summary.Scanned++

		due, err := parseTime(record.SLADueAt)
		if err != nil {
			summary.Failed++
			logging.Error(logCtx, "invalid sla due date", slog.String("ncr_id", record.NCRID), slog.Any("err", errs.Loggable(err)))
			continue
		}
		severity := domainncr.Severity(record.Severity)
		level := domainncr.EscalationLevel(domainncr.Status(record.Status), due, windows.For(severity), now, policy.Escalation.MaxLevel)
		if level == 0 {
			continue
		}
		summary.Overdue++

		escalated, err := s.escalateOne(ctx, record, level, due, now)
		switch {
		case err != nil:
			summary.Failed++
			logging.Error(logCtx, "escalate ncr failed",
				slog.String("ncr_id", record.NCRID),
				slog.Int("level", level),
				slog.Any("err", errs.Loggable(err)),
			)
		case escalated:
			summary.Escalated++
			logging.Info(logCtx, "ncr escalated",
				slog.String("ncr_id", record.NCRID),
				slog.String("number", domainncr.FormatNumber(record.Seq)),
				slog.Int("level", level),
			)
		default:
			summary.AlreadyEscalated++
		}
	}

	summary.Notified, summary.NotifyDeferred = s.relayNotifications(ctx)

	s.setCacheBestEffort(ctx, SchedulerLastRunKey, formatTime(now), 0)
	logging.Info(logCtx, "escalation scan finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("overdue", summary.Overdue),
		slog.Int("escalated", summary.Escalated),
		slog.Int("failed", summary.Failed),
		slog.Int("notified", summary.Notified),
		slog.Int("deferred", summary.NotifyDeferred),
	)
	return summary, nil
}

// escalateOne claims the (ncr, level) marker and writes the ESCALATED entry
// and the outbox row in one transaction. Nothing leaves the process here;
// relayNotifications hands committed rows to the notifier.
func (s *Service) escalateOne(ctx context.Context, record ports.NCRRecord, level int, due time.Time, now time.Time) (bool, error) {
	ncrCtx, cancel := context.WithTimeout(ctx, s.opts.PerNCRTimeout)
	defer cancel()

	recipient := s.staffRecipient(ncrCtx, record)
	payload := s.escalationPayload(ncrCtx, record, level, due, now)
	nowStr := formatTime(now)

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return false, errs.Wrap(err, "encode escalation payload")
	}

	escalated := false
	err = s.uow.WithTx(ncrCtx, func(txCtx context.Context) error {
		inserted, err := s.repo.ClaimEscalation(txCtx, ports.EscalationMarker{
			NCRID:     record.NCRID,
			Level:     level,
			Recipient: recipient,
			CreatedAt: nowStr,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		details := map[string]any{"recipient": recipient}
		for key, value := range payload {
			details[key] = value
		}
		if err := appendAuditTx(txCtx, s.repo, record.NCRID, domainncr.SystemActor, domainncr.AuditEscalated, details, nowStr); err != nil {
			return err
		}

		if err := s.repo.EnqueueNotification(txCtx, ports.PendingNotification{
			NCRID:       record.NCRID,
			NCRNumber:   domainncr.FormatNumber(record.Seq),
			Kind:        string(domainncr.NotifyEscalated),
			Recipient:   recipient,
			PayloadJSON: string(rawPayload),
			OccurredAt:  nowStr,
		}); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return escalated, nil
}

// relayNotifications hands pending outbox rows to the notifier. A row is
// marked sent before dispatch so two relays never send it twice; a rejected
// dispatch releases it for the next scan.
func (s *Service) relayNotifications(ctx context.Context) (int, int) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.ncr.relay"))
	pending, err := s.repo.ListPendingNotifications(ctx, relayBatchSize)
	if err != nil {
		logging.Error(logCtx, "list pending notifications failed", slog.Any("err", errs.Loggable(err)))
		return 0, 0
	}

	delivered, deferred := 0, 0
	for i, item := range pending {
		if ctx.Err() != nil {
			deferred += len(pending) - i
			break
		}
		event, err := notificationFromOutbox(item)
		if err != nil {
			deferred++
			logging.Error(logCtx, "decode outbox row failed", slog.Uint64("outbox_id", item.OutboxID), slog.Any("err", errs.Loggable(err)))
			continue
		}

		claimed, err := s.repo.MarkNotificationSent(ctx, item.OutboxID, formatTime(s.now()))
		if err != nil {
			deferred++
			logging.Error(logCtx, "claim outbox row failed", slog.Uint64("outbox_id", item.OutboxID), slog.Any("err", errs.Loggable(err)))
			continue
		}
		if !claimed {
			continue
		}

		if err := s.dispatchOutboxEvent(ctx, event); err != nil {
			deferred++
			logging.Warn(logCtx, "notification deferred",
				slog.Uint64("outbox_id", item.OutboxID),
				slog.String("ncr_id", item.NCRID),
				slog.Any("err", errs.Loggable(err)),
			)
			if err := s.repo.ReleaseNotification(context.WithoutCancel(ctx), item.OutboxID); err != nil {
				logging.Error(logCtx, "release outbox row failed", slog.Uint64("outbox_id", item.OutboxID), slog.Any("err", errs.Loggable(err)))
			}
			continue
		}
		delivered++
	}
	return delivered, deferred
}

func (s *Service) dispatchOutboxEvent(ctx context.Context, event ports.NotificationEvent) error {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.PerNCRTimeout)
	defer cancel()
	if err := s.notifier.Dispatch(dispatchCtx, event); err != nil {
		return errs.Wrap(err, "enqueue notification")
	}
	return nil
}

func notificationFromOutbox(item ports.PendingNotification) (ports.NotificationEvent, error) {
	data := map[string]any{}
	if err := json.Unmarshal([]byte(item.PayloadJSON), &data); err != nil {
		return ports.NotificationEvent{}, errs.Wrapf(err, "decode payload of outbox row %d", item.OutboxID)
	}
	return ports.NotificationEvent{
		NCRID:      item.NCRID,
		NCRNumber:  item.NCRNumber,
		Kind:       item.Kind,
		Recipient:  item.Recipient,
		Data:       data,
		OccurredAt: item.OccurredAt,
	}, nil
}

func (s *Service) escalationPayload(ctx context.Context, record ports.NCRRecord, level int, due time.Time, now time.Time) map[string]any {
	payload := map[string]any{
		"level":       level,
		"daysOverdue": domainncr.DaysOverdue(due, now),
		"ncrNumber":   domainncr.FormatNumber(record.Seq),
		"severity":    record.Severity,
		"slaDueAt":    record.SLADueAt,
	}
	if s.refs == nil {
		return payload
	}
	if po, err := s.refs.GetPurchaseOrder(ctx, record.PurchaseOrderID); err == nil {
		payload["poNumber"] = po.Number
	}
	if supplier, err := s.refs.GetSupplier(ctx, record.SupplierID); err == nil {
		payload["supplierName"] = supplier.Name
	}
	return payload
}
