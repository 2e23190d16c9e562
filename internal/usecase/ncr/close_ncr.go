package ncr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// CloseNCR closes an NCR when the lifecycle and closure documents allow it.
func (s *Service) CloseNCR(ctx context.Context, input CloseNCRInput) (NCRView, error) {
	if ctx == nil {
		return NCRView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return NCRView{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return NCRView{}, err
	}
	if err := input.Actor.Authorize(domainncr.ActionClose); err != nil {
		return NCRView{}, err
	}

	input.ClosedReason = strings.TrimSpace(input.ClosedReason)
	input.ProofOfFixDocumentID = strings.TrimSpace(input.ProofOfFixDocumentID)
	input.CreditNoteDocumentID = strings.TrimSpace(input.CreditNoteDocumentID)
	if err := s.validateInput(input); err != nil {
		return NCRView{}, err
	}

	policy := s.policy.Current()
	now := s.now()
	nowStr := formatTime(now)
	var closed ports.NCRRecord
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := resolveNCR(txCtx, s.repo, input.NCRRef)
		if err != nil {
			return err
		}
		from := domainncr.Status(current.Status)
		if err := domainncr.CheckClose(from, policy.Close.AllowDirectClose); err != nil {
			return err
		}
		if err := domainncr.EvaluateClosePreconditions(domainncr.ClosePreconditions{
			RequiresCreditNote: current.RequiresCreditNote,
			CreditNoteDocID:    input.CreditNoteDocumentID,
			RequireProofOfFix:  policy.Close.RequireProofOfFix,
			ProofOfFixDocID:    input.ProofOfFixDocumentID,
		}); err != nil {
			return err
		}

		if err := s.repo.MarkClosed(txCtx, ports.NCRClose{
			NCRID:                current.NCRID,
			FromStatus:           current.Status,
			FromVersion:          current.Version,
			ClosedBy:             input.Actor.UserID,
			ClosedReason:         input.ClosedReason,
			ProofOfFixDocumentID: optionalString(input.ProofOfFixDocumentID),
			CreditNoteDocumentID: optionalString(input.CreditNoteDocumentID),
			ClosedAt:             nowStr,
		}); err != nil {
			return conflictOrErr(err, current.NCRID)
		}

		details := map[string]any{
			"from":         string(from),
			"closedReason": input.ClosedReason,
		}
		if input.ProofOfFixDocumentID != "" {
			details["proofOfFixDocumentId"] = input.ProofOfFixDocumentID
		}
		if input.CreditNoteDocumentID != "" {
			details["creditNoteDocumentId"] = input.CreditNoteDocumentID
		}
		if err := appendAuditTx(txCtx, s.repo, current.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditClosed, details, nowStr); err != nil {
			return err
		}

		closed, err = s.repo.GetNCR(txCtx, current.NCRID)
		return err
	}); err != nil {
		return NCRView{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.ncr"))
	logging.Info(logCtx, "ncr closed",
		slog.String("ncr_id", closed.NCRID),
		slog.String("closed_by", input.Actor.UserID),
	)
	s.notifyBestEffort(logCtx, closed, domainncr.NotifyClosed, map[string]any{
		"closedBy":     input.Actor.UserID,
		"closedReason": input.ClosedReason,
	})
	return toNCRView(closed, now), nil
}
