package memory

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	units           map[string]domain.Unit
	products        map[string]domain.Product
	purchases       map[string][]domain.PurchaseEntry
	customers       map[string]domain.Customer
	salesByID       map[string]*domain.Sale
	activityLogs    []domain.ActivityLog
	usersByUsername map[string]domain.UserAccount
	systemConfig    map[string]string
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. The in-memory
// store is never selected when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username    string
		password    string
		role        string
		permissions []string
	}{
		{"admin", adminPwd, domain.RoleAdmin, nil},
		{"staff", staffPwd, domain.RoleStaff, []string{"products.view", "sales.view", "sales.create", "customers.manage", "dashboard.view"}},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:          xid.New("user"),
			Username:    u.username,
			Password:    string(hash),
			Role:        u.role,
			Permissions: u.permissions,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	units := []domain.Unit{
		{ID: "unit-pcs", Name: "Pieces", Abbreviation: "pcs", CreatedAt: now},
		{ID: "unit-kg", Name: "Kilogram", Abbreviation: "kg", CreatedAt: now},
		{ID: "unit-box", Name: "Box", Abbreviation: "box", CreatedAt: now},
	}

	products := []domain.Product{
		{ID: "prod-beras-01", Name: "Beras Premium 5kg", Qty: dec("40"), OriginalPrice: dec("62000"), SalePrice: dec("68000"), UnitID: "unit-pcs"},
		{ID: "prod-minyak-01", Name: "Minyak Goreng 2L", Qty: dec("55"), OriginalPrice: dec("34000"), SalePrice: dec("38500"), UnitID: "unit-pcs"},
		{ID: "prod-gula-01", Name: "Gula Pasir", Qty: dec("80"), OriginalPrice: dec("15500"), SalePrice: dec("17500"), UnitID: "unit-kg"},
		{ID: "prod-telur-01", Name: "Telur Ayam", Qty: dec("30"), OriginalPrice: dec("25000"), SalePrice: dec("28000"), UnitID: "unit-kg"},
		{ID: "prod-kopi-01", Name: "Kopi Bubuk 200g", Qty: dec("24"), OriginalPrice: dec("12500"), SalePrice: dec("15000"), UnitID: "unit-pcs"},
		{ID: "prod-mie-01", Name: "Mie Instan (dus)", Qty: dec("18"), OriginalPrice: dec("98000"), SalePrice: dec("108000"), UnitID: "unit-box"},
	}

	customers := []domain.Customer{
		{ID: "cust-warung-01", Name: "Warung Bu Siti", Phone: "0812-3456-7801", OverpaidAmount: decimal.Zero, UnderpaidAmount: decimal.Zero, CreatedAt: now},
		{ID: "cust-warung-02", Name: "Toko Pak Budi", Phone: "0812-3456-7802", OverpaidAmount: decimal.Zero, UnderpaidAmount: dec("45000"), CreatedAt: now},
		{ID: "cust-catering-01", Name: "Catering Melati", Phone: "0812-3456-7803", OverpaidAmount: dec("20000"), UnderpaidAmount: decimal.Zero, CreatedAt: now},
	}

	unitMap := make(map[string]domain.Unit, len(units))
	for _, u := range units {
		unitMap[u.ID] = u
	}
	productMap := make(map[string]domain.Product, len(products))
	purchases := make(map[string][]domain.PurchaseEntry, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
		purchases[p.ID] = []domain.PurchaseEntry{{
			ID:          xid.New("pur"),
			ProductID:   p.ID,
			ProductName: p.Name,
			Qty:         p.Qty,
			UnitCost:    p.OriginalPrice,
			Source:      domain.PurchaseSourceInitial,
			CreatedAt:   now,
		}}
	}
	customerMap := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		customerMap[c.ID] = c
	}

	return &Store{
		units:           unitMap,
		products:        productMap,
		purchases:       purchases,
		customers:       customerMap,
		salesByID:       make(map[string]*domain.Sale),
		activityLogs:    make([]domain.ActivityLog, 0, 128),
		usersByUsername: seedUsers(),
		systemConfig:    make(map[string]string),
	}
}

// NewEmpty returns a store with seeded users but no domain data. Used by
// tests that want a clean slate.
func NewEmpty() *Store {
	return &Store{
		units:           make(map[string]domain.Unit),
		products:        make(map[string]domain.Product),
		purchases:       make(map[string][]domain.PurchaseEntry),
		customers:       make(map[string]domain.Customer),
		salesByID:       make(map[string]*domain.Sale),
		activityLogs:    make([]domain.ActivityLog, 0, 16),
		usersByUsername: seedUsers(),
		systemConfig:    make(map[string]string),
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("[memory-store] bad seed decimal %q: %v", s, err)
	}
	return d
}

func (s *Store) ListUnits(_ context.Context) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.Unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	slices.SortFunc(units, func(a, b domain.Unit) int {
		return cmpString(a.Name, b.Name)
	})
	return units, nil
}

func (s *Store) GetUnitByID(_ context.Context, id string) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, exists := s.units[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUnit := unit
	return &copyUnit, nil
}

func (s *Store) CreateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.units {
		if strings.EqualFold(existing.Name, unit.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now().UTC()
	}
	s.units[unit.ID] = unit
	created := unit
	return &created, nil
}

func (s *Store) UpdateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.units[unit.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(unit.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for id, existing := range s.units {
		if id != unit.ID && strings.EqualFold(existing.Name, unit.Name) {
			return nil, store.ErrDuplicate
		}
	}
	unit.CreatedAt = current.CreatedAt
	s.units[unit.ID] = unit
	updated := unit
	return &updated, nil
}

func (s *Store) DeleteUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.units[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.UnitID == id {
			return store.ErrConflict
		}
	}
	delete(s.units, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if product.UnitID != "" {
		if _, exists := s.units[product.UnitID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for id, existing := range s.products {
		if id != product.ID && strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if product.UnitID != "" {
		if _, exists := s.units[product.UnitID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	// Stock moves only through sales and restocks.
	product.Qty = current.Qty
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		for _, item := range sale.Items {
			if item.ProductID == id {
				return store.ErrConflict
			}
		}
	}
	delete(s.products, id)
	delete(s.purchases, id)
	return nil
}

func (s *Store) RestockProduct(_ context.Context, entry domain.PurchaseEntry) (*domain.Product, *domain.PurchaseEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !entry.Qty.IsPositive() {
		return nil, nil, store.ErrInvalidInput
	}
	product, exists := s.products[entry.ProductID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}

	product.Qty = product.Qty.Add(entry.Qty)
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	if entry.ID == "" {
		entry.ID = xid.New("pur")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Source == "" {
		entry.Source = domain.PurchaseSourceRestock
	}
	entry.ProductName = product.Name
	s.purchases[product.ID] = append(s.purchases[product.ID], entry)

	copyProduct := product
	copyEntry := entry
	return &copyProduct, &copyEntry, nil
}

func (s *Store) ListPurchases(_ context.Context, productID string, limit int) ([]domain.PurchaseEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseEntry, 0, 64)
	if productID != "" {
		result = append(result, s.purchases[productID]...)
	} else {
		for _, entries := range s.purchases {
			result = append(result, entries...)
		}
	}
	slices.SortFunc(result, func(a, b domain.PurchaseEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.customers {
		if strings.EqualFold(existing.Name, customer.Name) {
			return nil, store.ErrDuplicate
		}
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.OverpaidAmount = decimal.Zero
	customer.UnderpaidAmount = decimal.Zero
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.customers {
		if existing.ID != customer.ID && strings.EqualFold(existing.Name, customer.Name) {
			return nil, store.ErrDuplicate
		}
	}
	// Balances move only through sale create/delete.
	customer.OverpaidAmount = current.OverpaidAmount
	customer.UnderpaidAmount = current.UnderpaidAmount
	customer.CreatedAt = current.CreatedAt
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	for _, sale := range s.salesByID {
		if sale.CustomerID == id {
			return store.ErrConflict
		}
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	var customer domain.Customer
	if sale.CustomerID != "" {
		var exists bool
		customer, exists = s.customers[sale.CustomerID]
		if !exists {
			return nil, store.ErrNotFound
		}
		sale.CustomerName = customer.Name
	}

	// Check every line before touching anything so the caller gets the
	// full out-of-stock list, not just the first failure. Lines for the
	// same product count against the same stock.
	requested := make(map[string]decimal.Decimal, len(sale.Items))
	productOrder := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		if !item.Qty.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, store.ErrNotFound
		}
		if _, seen := requested[item.ProductID]; !seen {
			productOrder = append(productOrder, item.ProductID)
		}
		requested[item.ProductID] = requested[item.ProductID].Add(item.Qty)
	}
	var outOfStock []domain.OutOfStockItem
	for _, productID := range productOrder {
		product := s.products[productID]
		if product.Qty.LessThan(requested[productID]) {
			outOfStock = append(outOfStock, domain.OutOfStockItem{
				ProductID:    product.ID,
				ProductName:  product.Name,
				AvailableQty: product.Qty,
				RequestedQty: requested[productID],
			})
		}
	}
	if len(outOfStock) > 0 {
		return nil, &store.StockError{Items: outOfStock}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = now
	}

	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		product := s.products[item.ProductID]
		product.Qty = product.Qty.Sub(item.Qty)
		product.UpdatedAt = now
		s.products[product.ID] = product

		unitPrice := product.SalePrice
		subtotal := unitPrice.Mul(item.Qty)
		total = total.Add(subtotal)
		items = append(items, domain.SaleItem{
			ID:          xid.New("item"),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         item.Qty,
			UnitPrice:   unitPrice,
			Subtotal:    subtotal,
		})
	}
	sale.Items = items
	sale.TotalAmount = total
	sale.PaymentStatus = domain.DerivePaymentStatus(total, sale.PaidAmount)

	if sale.CustomerID != "" {
		customer.OverpaidAmount, customer.UnderpaidAmount = domain.ApplyPaymentDelta(
			customer.OverpaidAmount, customer.UnderpaidAmount, sale.PaidAmount, total)
		s.customers[customer.ID] = customer
	}

	s.salesByID[sale.ID] = cloneSale(&sale)
	return cloneSale(&sale), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.SaleDate.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.SaleDate.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	for _, item := range sale.Items {
		product, exists := s.products[item.ProductID]
		if !exists {
			continue
		}
		product.Qty = product.Qty.Add(item.Qty)
		product.UpdatedAt = now
		s.products[product.ID] = product
	}

	if sale.CustomerID != "" {
		if customer, exists := s.customers[sale.CustomerID]; exists {
			customer.OverpaidAmount, customer.UnderpaidAmount = domain.ReversePaymentDelta(
				customer.OverpaidAmount, customer.UnderpaidAmount, sale.PaidAmount, sale.TotalAmount)
			s.customers[customer.ID] = customer
		}
	}

	deleted := cloneSale(sale)
	delete(s.salesByID, id)
	return deleted, nil
}

func (s *Store) GetDashboardSummary(_ context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DashboardSummary{
		SalesTotal:     decimal.Zero,
		PurchasesTotal: decimal.Zero,
		OverpaidTotal:  decimal.Zero,
		UnderpaidTotal: decimal.Zero,
	}
	for _, sale := range s.salesByID {
		if !inRange(sale.SaleDate, from, to) {
			continue
		}
		summary.SalesTotal = summary.SalesTotal.Add(sale.TotalAmount)
		summary.SalesCount++
	}
	for _, entries := range s.purchases {
		for _, entry := range entries {
			if !inRange(entry.CreatedAt, from, to) {
				continue
			}
			summary.PurchasesTotal = summary.PurchasesTotal.Add(entry.UnitCost.Mul(entry.Qty))
		}
	}
	for _, customer := range s.customers {
		summary.OverpaidTotal = summary.OverpaidTotal.Add(customer.OverpaidAmount)
		summary.UnderpaidTotal = summary.UnderpaidTotal.Add(customer.UnderpaidAmount)
	}
	summary.CustomerCount = int64(len(s.customers))
	summary.ProductCount = int64(len(s.products))
	return summary, nil
}

func (s *Store) GetSalesTrend(_ context.Context, from time.Time, to time.Time) ([]domain.TrendPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := map[string]decimal.Decimal{}
	for _, sale := range s.salesByID {
		if !inRange(sale.SaleDate, from, to) {
			continue
		}
		date := sale.SaleDate.UTC().Format("2006-01-02")
		byDate[date] = byDate[date].Add(sale.TotalAmount)
	}

	points := make([]domain.TrendPoint, 0, len(byDate))
	for date, total := range byDate {
		points = append(points, domain.TrendPoint{Date: date, Total: total})
	}
	slices.SortFunc(points, func(a, b domain.TrendPoint) int {
		return cmpString(a.Date, b.Date)
	})
	return points, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, threshold decimal.Decimal) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.Qty.LessThan(threshold) {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return a.Qty.Cmp(b.Qty)
	})
	return result, nil
}

func (s *Store) CreateActivityLog(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activityLogs = append(s.activityLogs, entry)
	return nil
}

func (s *Store) ListActivityLogs(_ context.Context, filter domain.ActivityLogFilter) (domain.ActivityLogPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.ActivityLog, 0, len(s.activityLogs))
	for _, entry := range s.activityLogs {
		if filter.Username != "" && entry.Actor != filter.Username {
			continue
		}
		if filter.TableName != "" && entry.TableName != filter.TableName {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		if !inRange(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		matched = append(matched, entry)
	}
	slices.SortFunc(matched, func(a, b domain.ActivityLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return domain.ActivityLogPage{
		Logs:  matched[start:end],
		Total: len(matched),
		Page:  page,
		Limit: limit,
	}, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return nil, store.ErrDuplicate
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	created := cloneUser(user)
	return &created, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, cloneUser(user))
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := cloneUser(user)
	return &copyUser, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.usersByUsername[user.Username]
	if !exists {
		return nil, store.ErrNotFound
	}
	current.Permissions = append([]string(nil), user.Permissions...)
	current.Active = user.Active
	if user.Password != "" {
		current.Password = user.Password
	}
	s.usersByUsername[current.Username] = current
	updated := cloneUser(current)
	return &updated, nil
}

func (s *Store) GetSystemConfig(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.systemConfig[key]
	if !exists {
		return "", store.ErrNotFound
	}
	return value, nil
}

func (s *Store) SetSystemConfig(_ context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(key) == "" {
		return store.ErrInvalidInput
	}
	s.systemConfig[key] = value
	return nil
}

func (s *Store) ListTables(_ context.Context) ([]domain.TableInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saleItems := 0
	for _, sale := range s.salesByID {
		saleItems += len(sale.Items)
	}
	purchases := 0
	for _, entries := range s.purchases {
		purchases += len(entries)
	}

	return []domain.TableInfo{
		{Name: "units", RowCount: int64(len(s.units))},
		{Name: "products", RowCount: int64(len(s.products))},
		{Name: "purchase_history", RowCount: int64(purchases)},
		{Name: "customers", RowCount: int64(len(s.customers))},
		{Name: "sales", RowCount: int64(len(s.salesByID))},
		{Name: "sale_items", RowCount: int64(saleItems)},
		{Name: "users", RowCount: int64(len(s.usersByUsername))},
		{Name: "activity_logs", RowCount: int64(len(s.activityLogs))},
		{Name: "system_config", RowCount: int64(len(s.systemConfig))},
	}, nil
}

func (s *Store) ReadTableRows(_ context.Context, table string, limit int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	var source any
	switch table {
	case "units":
		source = collectSorted(s.units, func(a, b domain.Unit) int { return cmpString(a.ID, b.ID) })
	case "products":
		source = collectSorted(s.products, func(a, b domain.Product) int { return cmpString(a.ID, b.ID) })
	case "purchase_history":
		entries := make([]domain.PurchaseEntry, 0, 64)
		for _, list := range s.purchases {
			entries = append(entries, list...)
		}
		slices.SortFunc(entries, func(a, b domain.PurchaseEntry) int { return cmpString(a.ID, b.ID) })
		source = entries
	case "customers":
		source = collectSorted(s.customers, func(a, b domain.Customer) int { return cmpString(a.ID, b.ID) })
	case "sales":
		sales := make([]domain.Sale, 0, len(s.salesByID))
		for _, sale := range s.salesByID {
			sales = append(sales, *cloneSale(sale))
		}
		slices.SortFunc(sales, func(a, b domain.Sale) int { return cmpString(a.ID, b.ID) })
		source = sales
	case "sale_items":
		items := make([]domain.SaleItem, 0, 64)
		for _, sale := range s.salesByID {
			items = append(items, sale.Items...)
		}
		slices.SortFunc(items, func(a, b domain.SaleItem) int { return cmpString(a.ID, b.ID) })
		source = items
	case "users":
		users := make([]domain.UserView, 0, len(s.usersByUsername))
		for _, user := range s.usersByUsername {
			users = append(users, domain.UserView{
				ID:          user.ID,
				Username:    user.Username,
				Role:        user.Role,
				Permissions: user.Permissions,
				Active:      user.Active,
				CreatedAt:   user.CreatedAt,
			})
		}
		slices.SortFunc(users, func(a, b domain.UserView) int { return cmpString(a.ID, b.ID) })
		source = users
	case "activity_logs":
		logs := make([]domain.ActivityLog, len(s.activityLogs))
		copy(logs, s.activityLogs)
		slices.SortFunc(logs, func(a, b domain.ActivityLog) int { return cmpString(a.ID, b.ID) })
		source = logs
	case "system_config":
		type row struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		rows := make([]row, 0, len(s.systemConfig))
		for k, v := range s.systemConfig {
			rows = append(rows, row{Key: k, Value: v})
		}
		slices.SortFunc(rows, func(a, b row) int { return cmpString(a.Key, b.Key) })
		source = rows
	default:
		return nil, store.ErrNotFound
	}

	raw, err := json.Marshal(source)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func collectSorted[T any](m map[string]T, cmp func(a, b T) int) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, cmp)
	return out
}

func inRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}

func cloneUser(src domain.UserAccount) domain.UserAccount {
	dup := src
	dup.Permissions = append([]string(nil), src.Permissions...)
	return dup
}
