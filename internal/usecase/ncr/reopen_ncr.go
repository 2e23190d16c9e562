package ncr

import (
	"context"
	"errors"
	"strings"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// ReopenNCR passes CLOSED -> REOPENED -> OPEN in one step. The live closure
// fields are cleared; the previous closure is kept in the REOPENED entry.
func (s *Service) ReopenNCR(ctx context.Context, input ReopenNCRInput) (NCRView, error) {
	if ctx == nil {
		return NCRView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return NCRView{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return NCRView{}, err
	}
	if err := input.Actor.Authorize(domainncr.ActionReopen); err != nil {
		return NCRView{}, err
	}

	input.Reason = strings.TrimSpace(input.Reason)
	if err := s.validateInput(input); err != nil {
		return NCRView{}, err
	}

	now := s.now()
	nowStr := formatTime(now)
	var reopened ports.NCRRecord
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := resolveNCR(txCtx, s.repo, input.NCRRef)
		if err != nil {
			return err
		}
		if err := domainncr.CheckReopen(domainncr.Status(current.Status)); err != nil {
			return err
		}

		if err := s.repo.MarkReopened(txCtx, ports.NCRReopen{
			NCRID:       current.NCRID,
			FromVersion: current.Version,
			ReopenedAt:  nowStr,
		}); err != nil {
			return conflictOrErr(err, current.NCRID)
		}

		if err := appendAuditTx(txCtx, s.repo, current.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditReopened, map[string]any{
			"from":   string(domainncr.StatusClosed),
			"via":    string(domainncr.StatusReopened),
			"to":     string(domainncr.StatusOpen),
			"reason": input.Reason,
			"previousClosure": map[string]any{
				"closedBy":             derefString(current.ClosedBy),
				"closedAt":             derefString(current.ClosedAt),
				"closedReason":         derefString(current.ClosedReason),
				"proofOfFixDocumentId": derefString(current.ProofOfFixDocumentID),
				"creditNoteDocumentId": derefString(current.CreditNoteDocumentID),
			},
		}, nowStr); err != nil {
			return err
		}

		reopened, err = s.repo.GetNCR(txCtx, current.NCRID)
		return err
	}); err != nil {
		return NCRView{}, err
	}

	return toNCRView(reopened, now), nil
}
