package ncr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/ports"
)

// ReferenceFixture is the YAML document read by `ref import`.
type ReferenceFixture struct {
	Suppliers      []ReferenceSupplier      `yaml:"suppliers"`
	Projects       []ReferenceProject       `yaml:"projects"`
	PurchaseOrders []ReferencePurchaseOrder `yaml:"purchase_orders"`
}

type ReferenceSupplier struct {
	ID             string `yaml:"id"`
	OrganizationID string `yaml:"organization_id"`
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
}

type ReferenceProject struct {
	ID             string `yaml:"id"`
	OrganizationID string `yaml:"organization_id"`
	Name           string `yaml:"name"`
	OwnerUserID    string `yaml:"owner_user_id"`
}

type ReferencePurchaseOrder struct {
	ID             string `yaml:"id"`
	OrganizationID string `yaml:"organization_id"`
	ProjectID      string `yaml:"project_id"`
	SupplierID     string `yaml:"supplier_id"`
	Number         string `yaml:"number"`
}

type ImportSummary struct {
	Suppliers      int `json:"suppliers"`
	Projects       int `json:"projects"`
	PurchaseOrders int `json:"purchaseOrders"`
}

// ImportReferences upserts the fixture rows in one transaction. Purchase
// orders must point at a supplier and project in the same organization,
// either already stored or in the fixture itself.
func ImportReferences(ctx context.Context, uow ports.UnitOfWork, refs ports.ReferenceRepository, fixture ReferenceFixture) (ImportSummary, error) {
	if ctx == nil {
		return ImportSummary{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ImportSummary{}, errs.Wrap(err, "check context")
	}
	if uow == nil {
		return ImportSummary{}, errUOWRequired
	}
	if refs == nil {
		return ImportSummary{}, errors.New("reference repository is required")
	}

	var summary ImportSummary
	err := uow.WithTx(ctx, func(txCtx context.Context) error {
		for i, item := range fixture.Suppliers {
			if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.OrganizationID) == "" {
				return errs.Kindf(domainncr.ErrValidation, "suppliers[%d] needs id and organization_id", i)
			}
			if err := refs.UpsertSupplier(txCtx, ports.Supplier{
				SupplierID:     strings.TrimSpace(item.ID),
				OrganizationID: strings.TrimSpace(item.OrganizationID),
				Name:           strings.TrimSpace(item.Name),
				Email:          strings.TrimSpace(item.Email),
			}); err != nil {
				return err
			}
			summary.Suppliers++
		}
		for i, item := range fixture.Projects {
			if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.OrganizationID) == "" {
				return errs.Kindf(domainncr.ErrValidation, "projects[%d] needs id and organization_id", i)
			}
			if err := refs.UpsertProject(txCtx, ports.Project{
				ProjectID:      strings.TrimSpace(item.ID),
				OrganizationID: strings.TrimSpace(item.OrganizationID),
				Name:           strings.TrimSpace(item.Name),
				OwnerUserID:    strings.TrimSpace(item.OwnerUserID),
			}); err != nil {
				return err
			}
			summary.Projects++
		}
		for i, item := range fixture.PurchaseOrders {
			po := ports.PurchaseOrder{
				PurchaseOrderID: strings.TrimSpace(item.ID),
				OrganizationID:  strings.TrimSpace(item.OrganizationID),
				ProjectID:       strings.TrimSpace(item.ProjectID),
				SupplierID:      strings.TrimSpace(item.SupplierID),
				Number:          strings.TrimSpace(item.Number),
			}
			if po.PurchaseOrderID == "" || po.OrganizationID == "" || po.ProjectID == "" || po.SupplierID == "" {
				return errs.Kindf(domainncr.ErrValidation, "purchase_orders[%d] needs id, organization_id, project_id and supplier_id", i)
			}
			if err := checkPurchaseOrderOwners(txCtx, refs, po); err != nil {
				return fmt.Errorf("purchase_orders[%d]: %w", i, err)
			}
			if err := refs.UpsertPurchaseOrder(txCtx, po); err != nil {
				return err
			}
			summary.PurchaseOrders++
		}
		return nil
	})
	if err != nil {
		return ImportSummary{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "usecase.ncr")), "reference data imported",
		slog.Int("suppliers", summary.Suppliers),
		slog.Int("projects", summary.Projects),
		slog.Int("purchase_orders", summary.PurchaseOrders),
	)
	return summary, nil
}

func checkPurchaseOrderOwners(ctx context.Context, refs ports.ReferenceReadRepository, po ports.PurchaseOrder) error {
	supplier, err := refs.GetSupplier(ctx, po.SupplierID)
	if err != nil {
		if errors.Is(err, ports.ErrSupplierNotFound) {
			return errs.Kindf(domainncr.ErrNotFound, "supplier %s", po.SupplierID)
		}
		return err
	}
	project, err := refs.GetProject(ctx, po.ProjectID)
	if err != nil {
		if errors.Is(err, ports.ErrProjectNotFound) {
			return errs.Kindf(domainncr.ErrNotFound, "project %s", po.ProjectID)
		}
		return err
	}
	if supplier.OrganizationID != po.OrganizationID || project.OrganizationID != po.OrganizationID {
		return errs.Kindf(domainncr.ErrValidation, "supplier, project and purchase order must share an organization")
	}
	return nil
}
