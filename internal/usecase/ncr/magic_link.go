package ncr

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"ncrflow/internal/bootstrap/logging"
	"ncrflow/internal/domain/magiclink"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

var errLinksRequired = errors.New("magic link repository is required")

// CreateMagicLink issues a supplier token scoped to one NCR. The raw token
// is only present in the returned value.
func (s *Service) CreateMagicLink(ctx context.Context, input CreateMagicLinkInput) (MagicLinkIssued, error) {
	if ctx == nil {
		return MagicLinkIssued{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return MagicLinkIssued{}, errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return MagicLinkIssued{}, err
	}
	if s.links == nil {
		return MagicLinkIssued{}, errLinksRequired
	}
	if err := input.Actor.Authorize(domainncr.ActionIssueMagicLink); err != nil {
		return MagicLinkIssued{}, err
	}

	input.SupplierID = strings.TrimSpace(input.SupplierID)
	if err := s.validateInput(input); err != nil {
		return MagicLinkIssued{}, err
	}
	expiry := s.opts.DefaultLinkExpiry
	if input.ExpiresInHours > 0 {
		expiry = time.Duration(input.ExpiresInHours) * time.Hour
	}

	linkID := s.newID()
	minted, err := magiclink.Mint(linkID)
	if err != nil {
		return MagicLinkIssued{}, errs.Wrap(err, "mint magic link token")
	}

	now := s.now()
	nowStr := formatTime(now)
	expiresAt := formatTime(now.Add(expiry))
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		current, err := resolveNCR(txCtx, s.repo, input.NCRRef)
		if err != nil {
			return err
		}
		if domainncr.Status(current.Status).IsTerminal() {
			return errs.Kindf(domainncr.ErrPrecondition, "ncr %s is closed", domainncr.FormatNumber(current.Seq))
		}
		if current.SupplierID != input.SupplierID {
			return errs.Kindf(domainncr.ErrValidation, "supplier %s is not the supplier of this ncr", input.SupplierID)
		}

		if err := s.links.CreateMagicLink(txCtx, ports.MagicLinkRecord{
			LinkID:       linkID,
			NCRID:        current.NCRID,
			SupplierID:   input.SupplierID,
			SecretSalt:   minted.SaltHex,
			SecretDigest: minted.DigestHex,
			CreatedBy:    input.Actor.UserID,
			CreatedAt:    nowStr,
			ExpiresAt:    expiresAt,
		}); err != nil {
			return err
		}
		return appendAuditTx(txCtx, s.repo, current.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditMagicLinkCreated, map[string]any{
			"linkId":     linkID,
			"supplierId": input.SupplierID,
			"expiresAt":  expiresAt,
		}, nowStr)
	}); err != nil {
		return MagicLinkIssued{}, err
	}

	return MagicLinkIssued{
		LinkID:    linkID,
		Token:     minted.Token,
		ExpiresAt: expiresAt,
		URL:       s.portalURL(minted.Token),
	}, nil
}

// ValidateMagicLink checks a supplier token. Unknown, malformed, revoked and
// wrong-secret tokens all fail with NotFoundError; a valid token past its
// expiry fails with ExpiredError. The first success stamps viewedAt.
func (s *Service) ValidateMagicLink(ctx context.Context, token string) (MagicLinkAccess, error) {
	if ctx == nil {
		return MagicLinkAccess{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return MagicLinkAccess{}, errs.Wrap(err, "check context")
	}

	link, err := s.authenticateLink(ctx, token)
	if err != nil {
		return MagicLinkAccess{}, err
	}

	if _, err := s.links.MarkViewed(ctx, link.LinkID, formatTime(s.now())); err != nil {
		logging.Warn(logging.WithAttrs(ctx, slog.String("component", "usecase.ncr")), "mark magic link viewed failed",
			slog.String("link_id", link.LinkID),
			slog.Any("err", errs.Loggable(err)),
		)
	}

	return MagicLinkAccess{
		NCRID:      link.NCRID,
		SupplierID: link.SupplierID,
	}, nil
}

// RevokeMagicLink ends a link before its expiry. Revoking twice is a no-op
// that still succeeds.
func (s *Service) RevokeMagicLink(ctx context.Context, input RevokeMagicLinkInput) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if err := s.checkWriteDeps(); err != nil {
		return err
	}
	if s.links == nil {
		return errLinksRequired
	}
	if err := input.Actor.Authorize(domainncr.ActionRevokeMagicLink); err != nil {
		return err
	}
	input.LinkID = strings.TrimSpace(input.LinkID)
	if err := s.validateInput(input); err != nil {
		return err
	}

	nowStr := formatTime(s.now())
	return s.uow.WithTx(ctx, func(txCtx context.Context) error {
		link, err := s.links.GetMagicLink(txCtx, input.LinkID)
		if err != nil {
			if errors.Is(err, ports.ErrMagicLinkNotFound) {
				return errs.Kindf(domainncr.ErrNotFound, "magic link %s", input.LinkID)
			}
			return err
		}
		revoked, err := s.links.Revoke(txCtx, link.LinkID, nowStr)
		if err != nil {
			return err
		}
		if !revoked {
			return nil
		}
		return appendAuditTx(txCtx, s.repo, link.NCRID, domainncr.UserActorRef(input.Actor.UserID), domainncr.AuditMagicLinkRevoked, map[string]any{
			"linkId":     link.LinkID,
			"supplierId": link.SupplierID,
		}, nowStr)
	})
}

// GetSupplierView validates token and returns the NCR as the supplier may
// see it: no internal comments.
func (s *Service) GetSupplierView(ctx context.Context, token string) (NCRDetail, error) {
	access, err := s.ValidateMagicLink(ctx, token)
	if err != nil {
		return NCRDetail{}, err
	}
	return s.GetNCRByID(ctx, access.NCRID, false)
}

// authenticateLink resolves and verifies a token without side effects.
func (s *Service) authenticateLink(ctx context.Context, token string) (ports.MagicLinkRecord, error) {
	if s.links == nil {
		return ports.MagicLinkRecord{}, errLinksRequired
	}

	linkID, secret, err := magiclink.Parse(token)
	if err != nil {
		return ports.MagicLinkRecord{}, errs.Kindf(domainncr.ErrNotFound, "magic link")
	}

	link, err := s.links.GetMagicLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, ports.ErrMagicLinkNotFound) {
			magiclink.BurnVerify(secret)
			return ports.MagicLinkRecord{}, errs.Kindf(domainncr.ErrNotFound, "magic link")
		}
		return ports.MagicLinkRecord{}, err
	}
	if !magiclink.Verify(link.SecretSalt, link.SecretDigest, secret) {
		return ports.MagicLinkRecord{}, errs.Kindf(domainncr.ErrNotFound, "magic link")
	}
	if link.RevokedAt != nil {
		return ports.MagicLinkRecord{}, errs.Kindf(domainncr.ErrNotFound, "magic link")
	}

	expiresAt, err := parseTime(link.ExpiresAt)
	if err != nil {
		return ports.MagicLinkRecord{}, err
	}
	if !s.now().Before(expiresAt) {
		return ports.MagicLinkRecord{}, errs.Kindf(domainncr.ErrExpired, "magic link expired at %s", link.ExpiresAt)
	}
	return link, nil
}

func (s *Service) portalURL(token string) string {
	base := strings.TrimRight(strings.TrimSpace(s.opts.PortalBaseURL), "/")
	query := url.Values{}
	query.Set("token", token)
	return base + "/portal/ncr?" + query.Encode()
}
