package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Unit struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Abbreviation string    `json:"abbreviation"`
	CreatedAt    time.Time `json:"created_at"`
}

type UnitCreateRequest struct {
	Name         string `json:"name" validate:"required"`
	Abbreviation string `json:"abbreviation"`
}

type UnitUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	Abbreviation *string `json:"abbreviation,omitempty"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Qty           decimal.Decimal `json:"qty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	UnitID        string          `json:"unit_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name" validate:"required"`
	InitialQty    decimal.Decimal `json:"initial_qty"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	UnitID        string          `json:"unit_id"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
	UnitID        *string          `json:"unit_id,omitempty"`
}

type RestockRequest struct {
	Qty      decimal.Decimal `json:"qty" validate:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	Note     string          `json:"note"`
}

type Customer struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Phone           string          `json:"phone,omitempty"`
	OverpaidAmount  decimal.Decimal `json:"overpaid_amount"`
	UnderpaidAmount decimal.Decimal `json:"underpaid_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Payment status values derived from paid_amount vs total_amount.
const (
	PaymentStatusPaid      = "paid"
	PaymentStatusOverpaid  = "overpaid"
	PaymentStatusUnderpaid = "underpaid"
)

type Sale struct {
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentStatus string          `json:"payment_status"`
	SaleDate      time.Time       `json:"sale_date"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID          string          `json:"id"`
	SaleID      string          `json:"sale_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         decimal.Decimal `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type SaleItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Qty       decimal.Decimal `json:"qty" validate:"required"`
}

type SaleCreateRequest struct {
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	Items        []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
	PaidAmount   decimal.Decimal   `json:"paid_amount"`
	SaleDate     string            `json:"sale_date"`
	Notes        string            `json:"notes"`
}

// OutOfStockItem is one entry of the structured stock-insufficiency payload
// returned when a sale requests more than a product has on hand.
type OutOfStockItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
}

// Purchase entry sources.
const (
	PurchaseSourceInitial = "initial"
	PurchaseSourceRestock = "restock"
)

type PurchaseEntry struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Source      string          `json:"source"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Activity log outcomes.
const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

type ActivityLog struct {
	ID           string    `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	TableName    string    `json:"table_name"`
	RecordID     string    `json:"record_id"`
	OldData      string    `json:"old_data,omitempty"`
	NewData      string    `json:"new_data,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ActivityLogFilter struct {
	Username  string
	TableName string
	Action    string
	Status    string
	From      time.Time
	To        time.Time
	Page      int
	Limit     int
}

type ActivityLogPage struct {
	Logs  []ActivityLog `json:"logs"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type DashboardSummary struct {
	SalesTotal     decimal.Decimal `json:"sales_total"`
	PurchasesTotal decimal.Decimal `json:"purchases_total"`
	SalesCount     int64           `json:"sales_count"`
	CustomerCount  int64           `json:"customer_count"`
	ProductCount   int64           `json:"product_count"`
	OverpaidTotal  decimal.Decimal `json:"overpaid_total"`
	UnderpaidTotal decimal.Decimal `json:"underpaid_total"`
}

type TrendPoint struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at"`
}

// Actor identifies the authenticated user attached to a request context.
type Actor struct {
	Username    string
	Role        string
	Permissions []string
}

// User roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// UserAccount is the persistence model for auth credentials and permissions.
type UserAccount struct {
	ID          string
	Username    string
	Password    string
	Role        string
	Permissions []string
	Active      bool
	CreatedAt   time.Time
}

type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username    string   `json:"username" validate:"required,min=4"`
	Password    string   `json:"password" validate:"required,min=6"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type UserUpdateRequest struct {
	Permissions *[]string `json:"permissions,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	Password    *string   `json:"password,omitempty"`
}

type LicenseStatus struct {
	Fingerprint string `json:"fingerprint"`
	Activated   bool   `json:"activated"`
	Key         string `json:"key,omitempty"`
}

type LicenseActivateRequest struct {
	Key string `json:"key" validate:"required"`
}

type TableInfo struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}
