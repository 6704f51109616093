package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gudangku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate value")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockError carries the full out-of-stock list accumulated while checking a
// sale's line items, so the caller can return it as structured error data
// rather than a bare message. It matches ErrInsufficientStock via errors.Is.
type StockError struct {
	Items []domain.OutOfStockItem
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d product(s)", len(e.Items))
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Repository interface {
	// Units.
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	GetUnitByID(ctx context.Context, id string) (*domain.Unit, error)
	CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	UpdateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	DeleteUnit(ctx context.Context, id string) error

	// Products and purchase history.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	RestockProduct(ctx context.Context, entry domain.PurchaseEntry) (*domain.Product, *domain.PurchaseEntry, error)
	ListPurchases(ctx context.Context, productID string, limit int) ([]domain.PurchaseEntry, error)

	// Customers.
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// Sales. CreateSale and DeleteSale run as single atomic transactions
	// covering the sale rows, product stock, and customer balances.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	DeleteSale(ctx context.Context, id string) (*domain.Sale, error)

	// Dashboard aggregates (read-only).
	GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error)
	GetSalesTrend(ctx context.Context, from time.Time, to time.Time) ([]domain.TrendPoint, error)
	ListLowStockProducts(ctx context.Context, threshold decimal.Decimal) ([]domain.Product, error)

	// Activity log (append-only).
	CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error
	ListActivityLogs(ctx context.Context, filter domain.ActivityLogFilter) (domain.ActivityLogPage, error)

	// Users.
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)

	// System config key/value store (UI config override, license key).
	GetSystemConfig(ctx context.Context, key string) (string, error)
	SetSystemConfig(ctx context.Context, key string, value string) error

	// Read-only database introspection for the admin database view.
	ListTables(ctx context.Context) ([]domain.TableInfo, error)
	ReadTableRows(ctx context.Context, table string, limit int) ([]map[string]any, error)
}
