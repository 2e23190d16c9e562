package ncr

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// GetNCRByID returns the NCR and its thread. Internal comments are included
// only when includeInternal is set.
func (s *Service) GetNCRByID(ctx context.Context, ncrRef string, includeInternal bool) (NCRDetail, error) {
	if ctx == nil {
		return NCRDetail{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return NCRDetail{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return NCRDetail{}, errRepoRequired
	}

	record, err := resolveNCR(ctx, s.repo, ncrRef)
	if err != nil {
		return NCRDetail{}, err
	}
	comments, err := s.repo.ListComments(ctx, record.NCRID, includeInternal)
	if err != nil {
		return NCRDetail{}, err
	}

	detail := NCRDetail{
		NCR:      toNCRView(record, s.now()),
		Comments: make([]CommentView, 0, len(comments)),
	}
	for _, comment := range comments {
		detail.Comments = append(detail.Comments, toCommentView(comment))
	}
	return detail, nil
}

func (s *Service) GetNCRsByPO(ctx context.Context, purchaseOrderID string) ([]NCRView, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return nil, errRepoRequired
	}

	poID := strings.TrimSpace(purchaseOrderID)
	if poID == "" {
		return nil, errs.Kindf(domainncr.ErrValidation, "purchase order id is required")
	}
	if s.refs != nil {
		if _, err := s.refs.GetPurchaseOrder(ctx, poID); err != nil {
			if errors.Is(err, ports.ErrPurchaseOrderNotFound) {
				return nil, errs.Kindf(domainncr.ErrNotFound, "purchase order %s", poID)
			}
			return nil, err
		}
	}

	return s.ListNCRs(ctx, ListNCRsInput{PurchaseOrderID: poID, IncludeClosed: true})
}

func (s *Service) ListNCRs(ctx context.Context, input ListNCRsInput) ([]NCRView, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return nil, errRepoRequired
	}

	filter := ports.NCRFilter{
		OrganizationID:  strings.TrimSpace(input.OrganizationID),
		PurchaseOrderID: strings.TrimSpace(input.PurchaseOrderID),
		IncludeClosed:   input.IncludeClosed,
	}
	if strings.TrimSpace(input.Status) != "" {
		status, err := domainncr.ParseStatus(input.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = string(status)
		if status == domainncr.StatusClosed {
			filter.IncludeClosed = true
		}
	}

	records, err := s.repo.ListNCRs(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]NCRView, 0, len(records))
	for _, record := range records {
		out = append(out, toNCRView(record, now))
	}
	return out, nil
}

// ExportNCR gathers everything known about one NCR for reporting.
func (s *Service) ExportNCR(ctx context.Context, ncrRef string) (NCRExport, error) {
	detail, err := s.GetNCRByID(ctx, ncrRef, true)
	if err != nil {
		return NCRExport{}, err
	}
	ncrID := detail.NCR.ID

	export := NCRExport{
		NCR:         detail.NCR,
		Comments:    detail.Comments,
		MagicLinks:  []MagicLinkActivity{},
		Escalations: []EscalationView{},
		AuditTrail:  []AuditView{},
		GeneratedAt: formatTime(s.now()),
	}

	if s.links != nil {
		links, err := s.links.ListMagicLinks(ctx, ncrID)
		if err != nil {
			return NCRExport{}, err
		}
		for _, link := range links {
			export.MagicLinks = append(export.MagicLinks, toMagicLinkActivity(link))
		}
	}

	markers, err := s.repo.ListEscalations(ctx, ncrID)
	if err != nil {
		return NCRExport{}, err
	}
	for _, marker := range markers {
		export.Escalations = append(export.Escalations, EscalationView{
			Level:     marker.Level,
			Recipient: marker.Recipient,
			CreatedAt: marker.CreatedAt,
		})
	}

	entries, err := s.repo.ListAuditEntries(ctx, ncrID)
	if err != nil {
		return NCRExport{}, err
	}
	for _, entry := range entries {
		details := map[string]any{}
		if strings.TrimSpace(entry.DetailsJSON) != "" {
			if err := json.Unmarshal([]byte(entry.DetailsJSON), &details); err != nil {
				return NCRExport{}, errs.Wrapf(err, "decode audit details %d", entry.AuditID)
			}
		}
		export.AuditTrail = append(export.AuditTrail, AuditView{
			ID:        entry.AuditID,
			Actor:     entry.Actor,
			Action:    entry.Action,
			Details:   details,
			CreatedAt: entry.CreatedAt,
		})
	}
	return export, nil
}
