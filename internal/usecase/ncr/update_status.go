package ncr

import (
	"context"
	"errors"
	"strings"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// UpdateStatus moves an NCR along one non-terminal edge of the lifecycle.
// Closing and reopening have their own operations.
func (s *Service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (NCRView, error) {
	if ctx == nil {
		return NCRView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return NCRView{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return NCRView{}, err
	}
	if err := input.Actor.Authorize(domainncr.ActionUpdateStatus); err != nil {
		return NCRView{}, err
	}

	input.Reason = strings.TrimSpace(input.Reason)
	if err := s.validateInput(input); err != nil {
		return NCRView{}, err
	}
	target, err := domainncr.ParseStatus(input.Status)
	if err != nil {
		return NCRView{}, err
	}

	now := s.now()
	nowStr := formatTime(now)
	var updated ports.NCRRecord
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := resolveNCR(txCtx, s.repo, input.NCRRef)
		if err != nil {
			return err
		}
		from := domainncr.Status(current.Status)
		if err := domainncr.CheckStatusUpdate(from, target); err != nil {
			return err
		}

		if err := s.repo.UpdateStatus(txCtx, ports.NCRStatusChange{
			NCRID:       current.NCRID,
			FromStatus:  current.Status,
			FromVersion: current.Version,
			ToStatus:    string(target),
			UpdatedAt:   nowStr,
		}); err != nil {
			return conflictOrErr(err, current.NCRID)
		}

		details := map[string]any{
			"from": string(from),
			"to":   string(target),
		}
		if input.Reason != "" {
			details["reason"] = input.Reason
		}
		if err := appendAuditTx(txCtx, s.repo, current.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditStatusChanged, details, nowStr); err != nil {
			return err
		}

		updated, err = s.repo.GetNCR(txCtx, current.NCRID)
		return err
	}); err != nil {
		return NCRView{}, err
	}

	return toNCRView(updated, now), nil
}
