package model

type Supplier struct {
	SupplierID     string `gorm:"column:supplier_id;type:text;primaryKey"`
	OrganizationID string `gorm:"column:organization_id;type:text;not null;index"`
	Name           string `gorm:"column:name;type:text;not null"`
	Email          string `gorm:"column:email;type:text;not null"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

type Project struct {
	ProjectID      string `gorm:"column:project_id;type:text;primaryKey"`
	OrganizationID string `gorm:"column:organization_id;type:text;not null;index"`
	Name           string `gorm:"column:name;type:text;not null"`
	OwnerUserID    string `gorm:"column:owner_user_id;type:text;not null"`
}

func (Project) TableName() string {
	return "projects"
}

type PurchaseOrder struct {
	PurchaseOrderID string `gorm:"column:purchase_order_id;type:text;primaryKey"`
	OrganizationID  string `gorm:"column:organization_id;type:text;not null;index"`
	ProjectID       string `gorm:"column:project_id;type:text;not null"`
	SupplierID      string `gorm:"column:supplier_id;type:text;not null"`
	Number          string `gorm:"column:number;type:text;not null"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}
