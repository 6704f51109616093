package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/license"
	"gudangku/backend/internal/permission"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pw")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-test-pw")
	return New(memory.NewEmpty(), nil, Options{})
}

func actorCtx(username string, role string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: role})
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func seedProduct(t *testing.T, svc *Service, ctx context.Context, name string, qty string, salePrice string) domain.Product {
	t.Helper()
	unit, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Name: "Pieces " + name, Abbreviation: "pcs"})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:          name,
		InitialQty:    dec(t, qty),
		OriginalPrice: dec(t, salePrice).Div(decimal.NewFromInt(2)),
		SalePrice:     dec(t, salePrice),
		UnitID:        unit.ID,
	})
	require.NoError(t, err)
	return product
}

func TestCreateProductRecordsInitialStockAsPurchase(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	product := seedProduct(t, svc, ctx, "Beras Premium", "40", "68000")
	assert.True(t, product.Qty.Equal(dec(t, "40")))

	entries, err := svc.ListPurchases(ctx, product.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.PurchaseSourceInitial, entries[0].Source)
	assert.True(t, entries[0].Qty.Equal(dec(t, "40")))
}

func TestCreateProductRejectsNegativePrices(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	unit, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Name: "Kilogram", Abbreviation: "kg"})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:          "Gula Pasir",
		InitialQty:    dec(t, "10"),
		OriginalPrice: dec(t, "-1"),
		SalePrice:     dec(t, "17500"),
		UnitID:        unit.ID,
	})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateProductDoesNotTouchStock(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)
	product := seedProduct(t, svc, ctx, "Kopi Bubuk", "24", "15000")

	newName := "Kopi Bubuk 200g"
	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Kopi Bubuk 200g", updated.Name)
	assert.True(t, updated.Qty.Equal(dec(t, "24")))
}

func TestCreateSaleDeductsStockAndDerivesStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("staff", domain.RoleStaff)

	product := seedProduct(t, svc, ctx, "Minyak Goreng", "10", "1000")
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Warung Bu Siti"})
	require.NoError(t, err)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "3")}},
		PaidAmount: dec(t, "2500"),
	})
	require.NoError(t, err)

	assert.True(t, sale.TotalAmount.Equal(dec(t, "3000")))
	assert.Equal(t, domain.PaymentStatusUnderpaid, sale.PaymentStatus)
	require.Len(t, sale.Items, 1)
	assert.True(t, sale.Items[0].Subtotal.Equal(dec(t, "3000")))

	after, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, after.Qty.Equal(dec(t, "7")))

	cust, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, cust.UnderpaidAmount.Equal(dec(t, "500")))
	assert.True(t, cust.OverpaidAmount.IsZero())
}

func TestCreateSaleReportsEveryShortLine(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("staff", domain.RoleStaff)

	p1 := seedProduct(t, svc, ctx, "Telur Ayam", "1", "28000")
	p2 := seedProduct(t, svc, ctx, "Mie Instan", "2", "108000")

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: p1.ID, Qty: dec(t, "5")},
			{ProductID: p2.ID, Qty: dec(t, "5")},
		},
		PaidAmount: decimal.Zero,
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *store.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Items, 2)

	// Nothing was deducted.
	after1, err := svc.GetProduct(ctx, p1.ID)
	require.NoError(t, err)
	assert.True(t, after1.Qty.Equal(dec(t, "1")))
	after2, err := svc.GetProduct(ctx, p2.ID)
	require.NoError(t, err)
	assert.True(t, after2.Qty.Equal(dec(t, "2")))
}

func TestDeleteSaleRestoresStockAndBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	product := seedProduct(t, svc, ctx, "Beras Medium", "20", "60000")
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Toko Pak Budi"})
	require.NoError(t, err)

	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "2")}},
		PaidAmount: dec(t, "150000"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusOverpaid, sale.PaymentStatus)

	midCust, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, midCust.OverpaidAmount.Equal(dec(t, "30000")))

	_, err = svc.DeleteSale(ctx, sale.ID)
	require.NoError(t, err)

	after, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, after.Qty.Equal(dec(t, "20")))

	cust, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, cust.OverpaidAmount.IsZero())
	assert.True(t, cust.UnderpaidAmount.IsZero())

	_, err = svc.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaleUnderpaymentCancelsExistingCredit(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("staff", domain.RoleStaff)

	product := seedProduct(t, svc, ctx, "Sabun Mandi", "50", "5000")
	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Ibu Ani"})
	require.NoError(t, err)

	// First sale leaves 4000 credit.
	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "1")}},
		PaidAmount: dec(t, "9000"),
	})
	require.NoError(t, err)

	// Second sale short by 1500 eats into the credit instead of opening debt.
	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: customer.ID,
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "1")}},
		PaidAmount: dec(t, "3500"),
	})
	require.NoError(t, err)

	cust, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, cust.OverpaidAmount.Equal(dec(t, "2500")))
	assert.True(t, cust.UnderpaidAmount.IsZero())
}

func TestActivityLogOneRowPerAttempt(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	_, err := svc.CreateUnit(ctx, domain.UnitCreateRequest{Name: "Box", Abbreviation: "box"})
	require.NoError(t, err)
	_, err = svc.CreateUnit(ctx, domain.UnitCreateRequest{Name: "Box", Abbreviation: "box"})
	require.ErrorIs(t, err, store.ErrDuplicate)

	page, err := svc.ListActivityLogs(ctx, domain.ActivityLogFilter{TableName: "units"})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)

	statuses := map[string]int{}
	for _, entry := range page.Logs {
		assert.Equal(t, "admin", entry.Actor)
		statuses[entry.Status]++
	}
	assert.Equal(t, 1, statuses[domain.LogStatusSuccess])
	assert.Equal(t, 1, statuses[domain.LogStatusFailed])
}

func TestActivityLogFailedSaleKeepsErrorMessage(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("staff", domain.RoleStaff)

	product := seedProduct(t, svc, ctx, "Teh Celup", "1", "8000")
	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "10")}},
		PaidAmount: decimal.Zero,
	})
	require.Error(t, err)

	page, err := svc.ListActivityLogs(ctx, domain.ActivityLogFilter{TableName: "sales", Status: domain.LogStatusFailed})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.NotEmpty(t, page.Logs[0].ErrorMessage)
}

func TestDashboardSummaryCaching(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pw")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-test-pw")

	fake := &fakeCache{entries: map[string]*domain.DashboardSummary{}}
	svc := New(memory.NewEmpty(), fake, Options{DashboardCacheTTL: time.Minute})
	ctx := actorCtx("admin", domain.RoleAdmin)

	product := seedProduct(t, svc, ctx, "Garam", "30", "4000")
	fake.reset()

	first, err := svc.GetDashboardSummary(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.sets)

	second, err := svc.GetDashboardSummary(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.hits)
	assert.True(t, first.ProductCount == second.ProductCount)

	// Any sale drops the cached aggregates.
	_, err = svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "1")}},
		PaidAmount: dec(t, "4000"),
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fake.invalidations, 1)

	third, err := svc.GetDashboardSummary(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, third.SalesTotal.Equal(dec(t, "4000")))
}

func TestLowStockUsesConfiguredThreshold(t *testing.T) {
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pw")
	t.Setenv("SEED_STAFF_PASSWORD", "staff-test-pw")

	svc := New(memory.NewEmpty(), nil, Options{LowStockThreshold: decimal.NewFromInt(10)})
	ctx := actorCtx("admin", domain.RoleAdmin)

	low := seedProduct(t, svc, ctx, "Kecap", "9", "12000")
	seedProduct(t, svc, ctx, "Saus", "11", "10000")

	products, err := svc.ListLowStockProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, low.ID, products[0].ID)
}

func TestCreateUserAppliesStaffDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	view, err := svc.CreateUser(ctx, domain.UserCreateRequest{
		Username: "Kasir01",
		Password: "rahasia-kasir",
	})
	require.NoError(t, err)
	assert.Equal(t, "kasir01", view.Username)
	assert.Equal(t, domain.RoleStaff, view.Role)
	assert.ElementsMatch(t, permission.Strings(permission.StaffDefaults), view.Permissions)

	_, err = svc.Authenticate(ctx, domain.LoginRequest{Username: "kasir01", Password: "rahasia-kasir"})
	assert.NoError(t, err)
}

func TestCreateUserDropsUnknownPermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	view, err := svc.CreateUser(ctx, domain.UserCreateRequest{
		Username:    "gudang01",
		Password:    "rahasia-gudang",
		Role:        domain.RoleStaff,
		Permissions: []string{"products.view", "products.everything", "sales.view"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"products.view", "sales.view"}, view.Permissions)
}

func TestUpdateUserDeactivationBlocksLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	_, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "kasir02", Password: "rahasia-kasir"})
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateUser(ctx, "kasir02", domain.UserUpdateRequest{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, domain.LoginRequest{Username: "kasir02", Password: "rahasia-kasir"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUserKeepsPasswordWhenOmitted(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	_, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "kasir03", Password: "rahasia-kasir"})
	require.NoError(t, err)

	perms := []string{"sales.view"}
	_, err = svc.UpdateUser(ctx, "kasir03", domain.UserUpdateRequest{Permissions: &perms})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, domain.LoginRequest{Username: "kasir03", Password: "rahasia-kasir"})
	assert.NoError(t, err)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, domain.LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, domain.LoginRequest{Username: "nobody", Password: "whatever"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLicenseActivation(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	status, err := svc.LicenseStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Activated)
	assert.NotEmpty(t, status.Fingerprint)

	_, err = svc.ActivateLicense(ctx, domain.LicenseActivateRequest{Key: "0000-0000-0000-0000"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	key, err := license.KeyFor(status.Fingerprint)
	require.NoError(t, err)
	activated, err := svc.ActivateLicense(ctx, domain.LicenseActivateRequest{Key: key})
	require.NoError(t, err)
	assert.True(t, activated.Activated)

	again, err := svc.LicenseStatus(ctx)
	require.NoError(t, err)
	assert.True(t, again.Activated)
}

func TestSaveUIConfigMergesOverDefaults(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	merged, err := svc.SaveUIConfig(ctx, map[string]any{
		"appearance": map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)

	appearance, ok := merged["appearance"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dark", appearance["theme"])
	assert.Equal(t, "#1976d2", appearance["primary_color"])

	format, ok := merged["format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IDR", format["currency"])
}

func TestDeleteSaleLogsOldSnapshot(t *testing.T) {
	svc := newTestService(t)
	ctx := actorCtx("admin", domain.RoleAdmin)

	product := seedProduct(t, svc, ctx, "Roti Tawar", "10", "14000")
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Items:      []domain.SaleItemRequest{{ProductID: product.ID, Qty: dec(t, "1")}},
		PaidAmount: dec(t, "14000"),
	})
	require.NoError(t, err)

	_, err = svc.DeleteSale(ctx, sale.ID)
	require.NoError(t, err)

	page, err := svc.ListActivityLogs(ctx, domain.ActivityLogFilter{TableName: "sales", Action: "delete"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Contains(t, page.Logs[0].OldData, sale.ID)
}

type fakeCache struct {
	mu            sync.Mutex
	entries       map[string]*domain.DashboardSummary
	hits          int
	sets          int
	invalidations int
}

func (f *fakeCache) Get(_ context.Context, key string) (*domain.DashboardSummary, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if summary, ok := f.entries[key]; ok {
		f.hits++
		clone := *summary
		return &clone, true, nil
	}
	return nil, false, nil
}

func (f *fakeCache) Set(_ context.Context, key string, summary *domain.DashboardSummary, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *summary
	f.entries[key] = &clone
	f.sets++
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string]*domain.DashboardSummary{}
	f.invalidations++
	return nil
}

func (f *fakeCache) Close() error { return nil }

func (f *fakeCache) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string]*domain.DashboardSummary{}
	f.hits, f.sets, f.invalidations = 0, 0, 0
}
