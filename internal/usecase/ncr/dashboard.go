package ncr

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// GetNCRDashboard aggregates NCR KPIs for one organization. ncrRate is NCRs
// per hundred purchase orders.
func (s *Service) GetNCRDashboard(ctx context.Context, organizationID string) (Dashboard, error) {
	if ctx == nil {
		return Dashboard{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Dashboard{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return Dashboard{}, errRepoRequired
	}

	orgID := strings.TrimSpace(organizationID)
	if orgID == "" {
		return Dashboard{}, errs.Kindf(domainncr.ErrValidation, "organization id is required")
	}

	cacheKey := "dashboard:" + orgID
	if s.cache != nil && s.opts.DashboardTTL > 0 {
		if raw, found, err := s.cache.Get(ctx, cacheKey); err == nil && found {
			var cached Dashboard
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		}
	}

	counts, err := s.repo.CountNCRs(ctx, orgID)
	if err != nil {
		return Dashboard{}, err
	}
	openRecords, err := s.repo.ListNCRs(ctx, ports.NCRFilter{OrganizationID: orgID})
	if err != nil {
		return Dashboard{}, err
	}

	now := s.now()
	var overdue int64
	for _, record := range openRecords {
		due, err := parseTime(record.SLADueAt)
		if err != nil {
			return Dashboard{}, err
		}
		if domainncr.IsOverdue(domainncr.Status(record.Status), due, now) {
			overdue++
		}
	}

	var poCount int64
	if s.refs != nil {
		poCount, err = s.refs.CountPurchaseOrders(ctx, orgID)
		if err != nil {
			return Dashboard{}, err
		}
	}

	byStatus := make(map[string]int64, len(domainncr.AllStatuses))
	for _, status := range domainncr.AllStatuses {
		if status == domainncr.StatusReopened {
			continue
		}
		byStatus[string(status)] = counts.ByStatus[string(status)]
	}

	dashboard := Dashboard{
		OrganizationID: orgID,
		TotalNCRs:      counts.Total,
		OpenNCRs:       counts.ByStatus[string(domainncr.StatusOpen)],
		ClosedNCRs:     counts.ByStatus[string(domainncr.StatusClosed)],
		CriticalNCRs:   counts.Critical,
		OverdueNCRs:    overdue,
		ByStatus:       byStatus,
		NCRRate:        ncrRate(counts.Total, poCount),
	}

	if s.opts.DashboardTTL > 0 {
		if raw, err := json.Marshal(dashboard); err == nil {
			s.setCacheBestEffort(ctx, cacheKey, string(raw), s.opts.DashboardTTL)
		}
	}
	return dashboard, nil
}

func ncrRate(total int64, purchaseOrders int64) float64 {
	if purchaseOrders <= 0 {
		return 0
	}
	rate := float64(total) / float64(purchaseOrders) * 100
	return math.Round(rate*100) / 100
}
