package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ncrflow/internal/errs"
	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	"ncrflow/internal/ports"
)

type ReferenceRepository struct {
	db *gorm.DB
}

var _ ports.ReferenceRepository = (*ReferenceRepository)(nil)

func NewReferenceRepository(db *gorm.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) GetSupplier(ctx context.Context, supplierID string) (ports.Supplier, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.Supplier{}, err
	}

	var row model.Supplier
	if err := db.Where("supplier_id = ?", strings.TrimSpace(supplierID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Supplier{}, ports.ErrSupplierNotFound
		}
		return ports.Supplier{}, errs.Wrap(err, "query supplier")
	}
	return ports.Supplier{
		SupplierID:     row.SupplierID,
		OrganizationID: row.OrganizationID,
		Name:           row.Name,
		Email:          row.Email,
	}, nil
}

func (r *ReferenceRepository) GetProject(ctx context.Context, projectID string) (ports.Project, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.Project{}, err
	}

	var row model.Project
	if err := db.Where("project_id = ?", strings.TrimSpace(projectID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Project{}, ports.ErrProjectNotFound
		}
		return ports.Project{}, errs.Wrap(err, "query project")
	}
	return ports.Project{
		ProjectID:      row.ProjectID,
		OrganizationID: row.OrganizationID,
		Name:           row.Name,
		OwnerUserID:    row.OwnerUserID,
	}, nil
}

func (r *ReferenceRepository) GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (ports.PurchaseOrder, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return ports.PurchaseOrder{}, err
	}

	var row model.PurchaseOrder
	if err := db.Where("purchase_order_id = ?", strings.TrimSpace(purchaseOrderID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PurchaseOrder{}, ports.ErrPurchaseOrderNotFound
		}
		return ports.PurchaseOrder{}, errs.Wrap(err, "query purchase order")
	}
	return ports.PurchaseOrder{
		PurchaseOrderID: row.PurchaseOrderID,
		OrganizationID:  row.OrganizationID,
		ProjectID:       row.ProjectID,
		SupplierID:      row.SupplierID,
		Number:          row.Number,
	}, nil
}

func (r *ReferenceRepository) CountPurchaseOrders(ctx context.Context, organizationID string) (int64, error) {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.Model(&model.PurchaseOrder{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error; err != nil {
		return 0, errs.Wrap(err, "count purchase orders")
	}
	return count, nil
}

func (r *ReferenceRepository) UpsertSupplier(ctx context.Context, supplier ports.Supplier) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	row := model.Supplier{
		SupplierID:     supplier.SupplierID,
		OrganizationID: supplier.OrganizationID,
		Name:           supplier.Name,
		Email:          supplier.Email,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "supplier_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert supplier")
	}
	return nil
}

func (r *ReferenceRepository) UpsertProject(ctx context.Context, project ports.Project) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	row := model.Project{
		ProjectID:      project.ProjectID,
		OrganizationID: project.OrganizationID,
		Name:           project.Name,
		OwnerUserID:    project.OwnerUserID,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert project")
	}
	return nil
}

func (r *ReferenceRepository) UpsertPurchaseOrder(ctx context.Context, po ports.PurchaseOrder) error {
	db, err := dbFromContext(r.db, ctx)
	if err != nil {
		return err
	}

	row := model.PurchaseOrder{
		PurchaseOrderID: po.PurchaseOrderID,
		OrganizationID:  po.OrganizationID,
		ProjectID:       po.ProjectID,
		SupplierID:      po.SupplierID,
		Number:          po.Number,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "purchase_order_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert purchase order")
	}
	return nil
}
