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

const supplierAuthorRole = "SUPPLIER"

// AddComment appends to an NCR thread. Supplier comments arrive through a
// magic link: they count as link actions and move an OPEN NCR to
// PENDING_SUPPLIER_RESPONSE.
func (s *Service) AddComment(ctx context.Context, input AddCommentInput) (CommentView, error) {
	if ctx == nil {
		return CommentView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return CommentView{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return CommentView{}, err
	}

	hasActor := input.Actor != nil
	hasToken := strings.TrimSpace(input.MagicLinkToken) != ""
	if hasActor == hasToken {
		return CommentView{}, errs.Kindf(domainncr.ErrValidation, "exactly one of staff actor or magic link is required")
	}

	input.Content = strings.TrimSpace(input.Content)
	input.AttachmentURLs = trimAll(input.AttachmentURLs)
	input.VoiceNoteURL = strings.TrimSpace(input.VoiceNoteURL)
	if err := s.validateInput(input); err != nil {
		return CommentView{}, err
	}
	if input.Content == "" && len(input.AttachmentURLs) == 0 && input.VoiceNoteURL == "" {
		return CommentView{}, errs.Kindf(domainncr.ErrValidation, "comment cannot be empty")
	}

	if hasActor {
		return s.addStaffComment(ctx, *input.Actor, input)
	}
	return s.addSupplierComment(ctx, input)
}

func (s *Service) addStaffComment(ctx context.Context, actor domainncr.Actor, input AddCommentInput) (CommentView, error) {
	if err := actor.Authorize(domainncr.ActionComment); err != nil {
		return CommentView{}, err
	}
	if input.IsInternal {
		if err := actor.Authorize(domainncr.ActionViewInternal); err != nil {
			return CommentView{}, err
		}
	}
	role := string(actor.Role)
	userID := strings.TrimSpace(actor.UserID)

	nowStr := formatTime(s.now())
	var created ports.CommentRecord
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := resolveNCR(txCtx, s.repo, input.NCRRef)
		if err != nil {
			return err
		}

		created, err = s.repo.AppendComment(txCtx, ports.CommentRecord{
			CommentID:      s.newID(),
			NCRID:          current.NCRID,
			AuthorUserID:   &userID,
			AuthorRole:     role,
			Content:        input.Content,
			IsInternal:     input.IsInternal,
			AttachmentURLs: input.AttachmentURLs,
			VoiceNoteURL:   optionalString(input.VoiceNoteURL),
			CreatedAt:      nowStr,
		})
		if err != nil {
			return err
		}
		return appendAuditTx(txCtx, s.repo, current.NCRID, domainncr.UserActorRef(userID), domainncr.AuditCommentAdded, map[string]any{
			"commentId":  created.CommentID,
			"isInternal": created.IsInternal,
		}, nowStr)
	}); err != nil {
		return CommentView{}, err
	}
	return toCommentView(created), nil
}

func (s *Service) addSupplierComment(ctx context.Context, input AddCommentInput) (CommentView, error) {
	link, err := s.authenticateLink(ctx, input.MagicLinkToken)
	if err != nil {
		return CommentView{}, err
	}
	if input.IsInternal {
		return CommentView{}, errs.Kindf(domainncr.ErrPermission, "suppliers cannot post internal comments")
	}
	if ref := strings.TrimSpace(input.NCRRef); ref != "" {
		target, err := resolveNCR(ctx, s.repo, ref)
		if err != nil || target.NCRID != link.NCRID {
			return CommentView{}, errs.Kindf(domainncr.ErrNotFound, "magic link")
		}
	}

	actorRef := domainncr.MagicLinkActorRef(link.LinkID)
	linkID := link.LinkID
	now := s.now()
	nowStr := formatTime(now)

	var (
		created     ports.CommentRecord
		record      ports.NCRRecord
		actionCount int64
	)
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetNCR(txCtx, link.NCRID)
		if err != nil {
			if errors.Is(err, ports.ErrNCRNotFound) {
				return errs.Kindf(domainncr.ErrNotFound, "magic link")
			}
			return err
		}
		if domainncr.Status(current.Status).IsTerminal() {
			return errs.Kindf(domainncr.ErrPrecondition, "ncr %s is closed", domainncr.FormatNumber(current.Seq))
		}

		created, err = s.repo.AppendComment(txCtx, ports.CommentRecord{
			CommentID:         s.newID(),
			NCRID:             current.NCRID,
			AuthorMagicLinkID: &linkID,
			AuthorRole:        supplierAuthorRole,
			Content:           input.Content,
			AttachmentURLs:    input.AttachmentURLs,
			VoiceNoteURL:      optionalString(input.VoiceNoteURL),
			CreatedAt:         nowStr,
		})
		if err != nil {
			return err
		}
		if err := appendAuditTx(txCtx, s.repo, current.NCRID, actorRef, domainncr.AuditCommentAdded, map[string]any{
			"commentId":  created.CommentID,
			"isInternal": false,
		}, nowStr); err != nil {
			return err
		}

		updatedLink, err := s.links.RecordAction(txCtx, linkID, nowStr)
		if err != nil {
			return err
		}
		actionCount = updatedLink.ActionCount
		if err := appendAuditTx(txCtx, s.repo, current.NCRID, actorRef, domainncr.AuditMagicLinkResponded, map[string]any{
			"linkId":      linkID,
			"supplierId":  link.SupplierID,
			"actionCount": actionCount,
		}, nowStr); err != nil {
			return err
		}

		if domainncr.Status(current.Status) == domainncr.StatusOpen {
			if err := s.repo.UpdateStatus(txCtx, ports.NCRStatusChange{
				NCRID:       current.NCRID,
				FromStatus:  current.Status,
				FromVersion: current.Version,
				ToStatus:    string(domainncr.StatusPendingSupplierResponse),
				UpdatedAt:   nowStr,
			}); err != nil {
				return conflictOrErr(err, current.NCRID)
			}
			if err := appendAuditTx(txCtx, s.repo, current.NCRID, actorRef, domainncr.AuditStatusChanged, map[string]any{
				"from":    string(domainncr.StatusOpen),
				"to":      string(domainncr.StatusPendingSupplierResponse),
				"trigger": "supplier_response",
			}, nowStr); err != nil {
				return err
			}
		}

		record, err = s.repo.GetNCR(txCtx, current.NCRID)
		return err
	}); err != nil {
		return CommentView{}, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "usecase.ncr"))
	logging.Info(logCtx, "supplier responded",
		slog.String("ncr_id", record.NCRID),
		slog.String("link_id", linkID),
		slog.Int64("action_count", actionCount),
	)
	s.notifyBestEffort(logCtx, record, domainncr.NotifyResponded, map[string]any{
		"linkId":      linkID,
		"supplierId":  link.SupplierID,
		"commentId":   created.CommentID,
		"actionCount": actionCount,
		"status":      record.Status,
	})
	return toCommentView(created), nil
}
