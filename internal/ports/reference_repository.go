package ports

import (
	"context"
	"errors"
)

var (
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	ErrSupplierNotFound      = errors.New("supplier not found")
	ErrProjectNotFound       = errors.New("project not found")
)

// Reference rows are owned by other platform modules; the NCR engine only
// resolves them by id.

type Supplier struct {
	SupplierID     string
	OrganizationID string
	Name           string
	Email          string
}

type Project struct {
	ProjectID      string
	OrganizationID string
	Name           string
	OwnerUserID    string
}

type PurchaseOrder struct {
	PurchaseOrderID string
	OrganizationID  string
	ProjectID       string
	SupplierID      string
	Number          string
}

type ReferenceReadRepository interface {
	GetSupplier(ctx context.Context, supplierID string) (Supplier, error)
	GetProject(ctx context.Context, projectID string) (Project, error)
	GetPurchaseOrder(ctx context.Context, purchaseOrderID string) (PurchaseOrder, error)
	CountPurchaseOrders(ctx context.Context, organizationID string) (int64, error)
}

type ReferenceRepository interface {
	ReferenceReadRepository
	UpsertSupplier(ctx context.Context, supplier Supplier) error
	UpsertProject(ctx context.Context, project Project) error
	UpsertPurchaseOrder(ctx context.Context, po PurchaseOrder) error
}
