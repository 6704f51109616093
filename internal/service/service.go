package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/appconfig"
	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/license"
	"gudangku/backend/internal/permission"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

const licenseConfigKey = "license_key"

// ErrInvalidCredentials deliberately hides whether the username or the
// password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DashboardCacheTTL time.Duration
	LowStockThreshold decimal.Decimal
}

type Service struct {
	repo      store.Repository
	dashCache cache.DashboardCache
	uiConfig  *appconfig.Service
	validate  *validator.Validate
	cacheTTL  time.Duration
	lowStock  decimal.Decimal
}

func New(repo store.Repository, dashCache cache.DashboardCache, opts Options) *Service {
	if dashCache == nil {
		dashCache = cache.NewNoop()
	}
	if opts.DashboardCacheTTL <= 0 {
		opts.DashboardCacheTTL = time.Minute
	}
	if opts.LowStockThreshold.IsZero() {
		opts.LowStockThreshold = decimal.NewFromInt(5)
	}

	return &Service{
		repo:      repo,
		dashCache: dashCache,
		uiConfig:  appconfig.NewService(repo),
		validate:  validator.New(),
		cacheTTL:  opts.DashboardCacheTTL,
		lowStock:  opts.LowStockThreshold,
	}
}

// Units.

func (s *Service) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *Service) CreateUnit(ctx context.Context, req domain.UnitCreateRequest) (domain.Unit, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Abbreviation = strings.TrimSpace(req.Abbreviation)
	if err := s.validate.Struct(req); err != nil {
		verr := invalidInput(err)
		s.logActivity(ctx, "create", "units", "", nil, req, verr)
		return domain.Unit{}, verr
	}

	created, err := s.repo.CreateUnit(ctx, domain.Unit{
		Name:         req.Name,
		Abbreviation: req.Abbreviation,
	})
	if err != nil {
		s.logActivity(ctx, "create", "units", "", nil, req, err)
		return domain.Unit{}, err
	}
	s.logActivity(ctx, "create", "units", created.ID, nil, created, nil)
	return *created, nil
}

func (s *Service) UpdateUnit(ctx context.Context, id string, req domain.UnitUpdateRequest) (domain.Unit, error) {
	existing, err := s.repo.GetUnitByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "update", "units", id, nil, req, err)
		return domain.Unit{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			verr := fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "units", id, existing, req, verr)
			return domain.Unit{}, verr
		}
		updated.Name = name
	}
	if req.Abbreviation != nil {
		updated.Abbreviation = strings.TrimSpace(*req.Abbreviation)
	}

	saved, err := s.repo.UpdateUnit(ctx, updated)
	if err != nil {
		s.logActivity(ctx, "update", "units", id, existing, req, err)
		return domain.Unit{}, err
	}
	s.logActivity(ctx, "update", "units", saved.ID, existing, saved, nil)
	return *saved, nil
}

func (s *Service) DeleteUnit(ctx context.Context, id string) error {
	existing, err := s.repo.GetUnitByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "delete", "units", id, nil, nil, err)
		return err
	}
	if err := s.repo.DeleteUnit(ctx, id); err != nil {
		s.logActivity(ctx, "delete", "units", id, existing, nil, err)
		return err
	}
	s.logActivity(ctx, "delete", "units", id, existing, nil, nil)
	return nil
}

// Products.

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.UnitID = strings.TrimSpace(req.UnitID)
	if err := s.validate.Struct(req); err != nil {
		verr := invalidInput(err)
		s.logActivity(ctx, "create", "products", "", nil, req, verr)
		return domain.Product{}, verr
	}
	if req.InitialQty.IsNegative() || req.OriginalPrice.IsNegative() || req.SalePrice.IsNegative() {
		verr := fmt.Errorf("%w: qty and prices must not be negative", store.ErrInvalidInput)
		s.logActivity(ctx, "create", "products", "", nil, req, verr)
		return domain.Product{}, verr
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Qty:           decimal.Zero,
		OriginalPrice: req.OriginalPrice,
		SalePrice:     req.SalePrice,
		UnitID:        req.UnitID,
	})
	if err != nil {
		s.logActivity(ctx, "create", "products", "", nil, req, err)
		return domain.Product{}, err
	}

	// Opening stock goes through the purchase history like any restock, so
	// the dashboard purchase total includes it.
	if req.InitialQty.IsPositive() {
		restocked, _, err := s.repo.RestockProduct(ctx, domain.PurchaseEntry{
			ProductID: created.ID,
			Qty:       req.InitialQty,
			UnitCost:  req.OriginalPrice,
			Source:    domain.PurchaseSourceInitial,
		})
		if err != nil {
			s.logActivity(ctx, "create", "products", created.ID, nil, req, err)
			return domain.Product{}, err
		}
		created = restocked
	}

	s.logActivity(ctx, "create", "products", created.ID, nil, created, nil)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "update", "products", id, nil, req, err)
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			verr := fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "products", id, existing, req, verr)
			return domain.Product{}, verr
		}
		updated.Name = name
	}
	if req.OriginalPrice != nil {
		if req.OriginalPrice.IsNegative() {
			verr := fmt.Errorf("%w: original_price must not be negative", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "products", id, existing, req, verr)
			return domain.Product{}, verr
		}
		updated.OriginalPrice = *req.OriginalPrice
	}
	if req.SalePrice != nil {
		if req.SalePrice.IsNegative() {
			verr := fmt.Errorf("%w: sale_price must not be negative", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "products", id, existing, req, verr)
			return domain.Product{}, verr
		}
		updated.SalePrice = *req.SalePrice
	}
	if req.UnitID != nil {
		updated.UnitID = strings.TrimSpace(*req.UnitID)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		s.logActivity(ctx, "update", "products", id, existing, req, err)
		return domain.Product{}, err
	}
	s.logActivity(ctx, "update", "products", saved.ID, existing, saved, nil)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "delete", "products", id, nil, nil, err)
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		s.logActivity(ctx, "delete", "products", id, existing, nil, err)
		return err
	}
	s.logActivity(ctx, "delete", "products", id, existing, nil, nil)
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) RestockProduct(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	if !req.Qty.IsPositive() {
		verr := fmt.Errorf("%w: restock qty must be positive", store.ErrInvalidInput)
		s.logActivity(ctx, "restock", "products", id, nil, req, verr)
		return domain.Product{}, verr
	}
	if req.UnitCost.IsNegative() {
		verr := fmt.Errorf("%w: unit_cost must not be negative", store.ErrInvalidInput)
		s.logActivity(ctx, "restock", "products", id, nil, req, verr)
		return domain.Product{}, verr
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "restock", "products", id, nil, req, err)
		return domain.Product{}, err
	}

	product, entry, err := s.repo.RestockProduct(ctx, domain.PurchaseEntry{
		ProductID: id,
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Source:    domain.PurchaseSourceRestock,
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		s.logActivity(ctx, "restock", "products", id, existing, req, err)
		return domain.Product{}, err
	}
	s.logActivity(ctx, "restock", "products", id, existing, entry, nil)
	s.invalidateDashboard(ctx)
	return *product, nil
}

func (s *Service) ListPurchases(ctx context.Context, productID string, limit int) ([]domain.PurchaseEntry, error) {
	return s.repo.ListPurchases(ctx, strings.TrimSpace(productID), limit)
}

// Customers.

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		verr := invalidInput(err)
		s.logActivity(ctx, "create", "customers", "", nil, req, verr)
		return domain.Customer{}, verr
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		s.logActivity(ctx, "create", "customers", "", nil, req, err)
		return domain.Customer{}, err
	}
	s.logActivity(ctx, "create", "customers", created.ID, nil, created, nil)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "update", "customers", id, nil, req, err)
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			verr := fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "customers", id, existing, req, verr)
			return domain.Customer{}, verr
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		s.logActivity(ctx, "update", "customers", id, existing, req, err)
		return domain.Customer{}, err
	}
	s.logActivity(ctx, "update", "customers", saved.ID, existing, saved, nil)
	return *saved, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		s.logActivity(ctx, "delete", "customers", id, nil, nil, err)
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		s.logActivity(ctx, "delete", "customers", id, existing, nil, err)
		return err
	}
	s.logActivity(ctx, "delete", "customers", id, existing, nil, nil)
	s.invalidateDashboard(ctx)
	return nil
}

// Sales.

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		verr := invalidInput(err)
		s.logActivity(ctx, "create", "sales", "", nil, req, verr)
		return domain.Sale{}, verr
	}
	if req.PaidAmount.IsNegative() {
		verr := fmt.Errorf("%w: paid_amount must not be negative", store.ErrInvalidInput)
		s.logActivity(ctx, "create", "sales", "", nil, req, verr)
		return domain.Sale{}, verr
	}

	saleDate := time.Now().UTC()
	if strings.TrimSpace(req.SaleDate) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.SaleDate))
		if err != nil {
			verr := fmt.Errorf("%w: sale_date must be YYYY-MM-DD", store.ErrInvalidInput)
			s.logActivity(ctx, "create", "sales", "", nil, req, verr)
			return domain.Sale{}, verr
		}
		saleDate = parsed
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || !line.Qty.IsPositive() {
			verr := fmt.Errorf("%w: each item needs a product_id and a positive qty", store.ErrInvalidInput)
			s.logActivity(ctx, "create", "sales", "", nil, req, verr)
			return domain.Sale{}, verr
		}
		items = append(items, domain.SaleItem{ProductID: productID, Qty: line.Qty})
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CustomerID:   strings.TrimSpace(req.CustomerID),
		CustomerName: strings.TrimSpace(req.CustomerName),
		PaidAmount:   req.PaidAmount,
		SaleDate:     saleDate,
		Notes:        strings.TrimSpace(req.Notes),
		Items:        items,
	})
	if err != nil {
		s.logActivity(ctx, "create", "sales", "", nil, req, err)
		return domain.Sale{}, err
	}

	s.logActivity(ctx, "create", "sales", created.ID, nil, created, nil)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, fromStr string, toStr string, limit int) ([]domain.Sale, error) {
	from, to, err := parseDateRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

// DeleteSale restores product stock and reverses the customer's balance
// adjustment, then removes the sale and its items.
func (s *Service) DeleteSale(ctx context.Context, id string) (domain.Sale, error) {
	deleted, err := s.repo.DeleteSale(ctx, id)
	if err != nil {
		s.logActivity(ctx, "delete", "sales", id, nil, nil, err)
		return domain.Sale{}, err
	}
	s.logActivity(ctx, "delete", "sales", id, deleted, nil, nil)
	s.invalidateDashboard(ctx)
	return *deleted, nil
}

// Dashboard.

func (s *Service) GetDashboardSummary(ctx context.Context, fromStr string, toStr string) (domain.DashboardSummary, error) {
	from, to, err := parseDateRange(fromStr, toStr)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	cacheKey := fmt.Sprintf("summary:%s:%s", fromStr, toStr)
	if cached, hit, err := s.dashCache.Get(ctx, cacheKey); err != nil {
		log.Printf("[dashboard] WARN: cache get failed: %v", err)
	} else if hit {
		return *cached, nil
	}

	summary, err := s.repo.GetDashboardSummary(ctx, from, to)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	if err := s.dashCache.Set(ctx, cacheKey, &summary, s.cacheTTL); err != nil {
		log.Printf("[dashboard] WARN: cache set failed: %v", err)
	}
	return summary, nil
}

func (s *Service) GetSalesTrend(ctx context.Context, fromStr string, toStr string) ([]domain.TrendPoint, error) {
	from, to, err := parseDateRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}
	return s.repo.GetSalesTrend(ctx, from, to)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, s.lowStock)
}

// Activity log.

func (s *Service) ListActivityLogs(ctx context.Context, filter domain.ActivityLogFilter) (domain.ActivityLogPage, error) {
	return s.repo.ListActivityLogs(ctx, filter)
}

// Users and permissions.

func (s *Service) ListPermissions(_ context.Context) []string {
	return permission.Strings(permission.All)
}

func (s *Service) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserAccount{}, ErrInvalidCredentials
		}
		return domain.UserAccount{}, err
	}
	if !user.Active {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	return *user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		views = append(views, toUserView(user))
	}
	return views, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if err := s.validate.Struct(req); err != nil {
		verr := invalidInput(err)
		s.logActivity(ctx, "create", "app_users", "", nil, req.Username, verr)
		return domain.UserView{}, verr
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		verr := fmt.Errorf("%w: role must be admin or staff", store.ErrInvalidInput)
		s.logActivity(ctx, "create", "app_users", "", nil, req.Username, verr)
		return domain.UserView{}, verr
	}

	perms := permission.Normalize(req.Permissions)
	if role == domain.RoleStaff && len(perms) == 0 {
		perms = permission.Strings(permission.StaffDefaults)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logActivity(ctx, "create", "app_users", "", nil, req.Username, err)
		return domain.UserView{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:    req.Username,
		Password:    string(hash),
		Role:        role,
		Permissions: perms,
	})
	if err != nil {
		s.logActivity(ctx, "create", "app_users", "", nil, req.Username, err)
		return domain.UserView{}, err
	}
	view := toUserView(*created)
	s.logActivity(ctx, "create", "app_users", created.ID, nil, view, nil)
	return view, nil
}

func (s *Service) UpdateUser(ctx context.Context, username string, req domain.UserUpdateRequest) (domain.UserView, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logActivity(ctx, "update", "app_users", username, nil, nil, err)
		return domain.UserView{}, err
	}

	updated := *existing
	if req.Permissions != nil {
		updated.Permissions = permission.Normalize(*req.Permissions)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	// An empty password keeps the stored hash unchanged.
	updated.Password = ""
	if req.Password != nil && *req.Password != "" {
		if len(*req.Password) < 6 {
			verr := fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
			s.logActivity(ctx, "update", "app_users", username, toUserView(*existing), req, verr)
			return domain.UserView{}, verr
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logActivity(ctx, "update", "app_users", username, toUserView(*existing), req, err)
			return domain.UserView{}, fmt.Errorf("hash password: %w", err)
		}
		updated.Password = string(hash)
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		s.logActivity(ctx, "update", "app_users", username, toUserView(*existing), req, err)
		return domain.UserView{}, err
	}
	view := toUserView(*saved)
	s.logActivity(ctx, "update", "app_users", saved.ID, toUserView(*existing), view, nil)
	return view, nil
}

// License.

func (s *Service) LicenseFingerprint(_ context.Context) string {
	return license.Fingerprint()
}

func (s *Service) LicenseStatus(ctx context.Context) (domain.LicenseStatus, error) {
	fingerprint := license.Fingerprint()
	status := domain.LicenseStatus{Fingerprint: fingerprint}

	key, err := s.repo.GetSystemConfig(ctx, licenseConfigKey)
	if errors.Is(err, store.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	if license.Validate(fingerprint, key) {
		status.Activated = true
		status.Key = key
	}
	return status, nil
}

func (s *Service) ActivateLicense(ctx context.Context, req domain.LicenseActivateRequest) (domain.LicenseStatus, error) {
	fingerprint := license.Fingerprint()
	if !license.Validate(fingerprint, req.Key) {
		verr := fmt.Errorf("%w: license key does not match this device", store.ErrInvalidInput)
		s.logActivity(ctx, "activate", "system_config", licenseConfigKey, nil, nil, verr)
		return domain.LicenseStatus{}, verr
	}

	key := license.Normalize(req.Key)
	if err := s.repo.SetSystemConfig(ctx, licenseConfigKey, key); err != nil {
		s.logActivity(ctx, "activate", "system_config", licenseConfigKey, nil, nil, err)
		return domain.LicenseStatus{}, err
	}
	status := domain.LicenseStatus{Fingerprint: fingerprint, Activated: true, Key: key}
	s.logActivity(ctx, "activate", "system_config", licenseConfigKey, nil, status, nil)
	return status, nil
}

// UI configuration.

func (s *Service) GetUIConfig(ctx context.Context) (map[string]any, error) {
	return s.uiConfig.Load(ctx)
}

func (s *Service) SaveUIConfig(ctx context.Context, override map[string]any) (map[string]any, error) {
	previous, err := s.uiConfig.Load(ctx)
	if err != nil {
		previous = nil
	}
	merged, err := s.uiConfig.Save(ctx, override)
	if err != nil {
		s.logActivity(ctx, "update", "system_config", appconfig.StorageKey, previous, override, err)
		return nil, err
	}
	s.logActivity(ctx, "update", "system_config", appconfig.StorageKey, previous, merged, nil)
	return merged, nil
}

// Database view.

func (s *Service) ListTables(ctx context.Context) ([]domain.TableInfo, error) {
	return s.repo.ListTables(ctx)
}

func (s *Service) ReadTableRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	return s.repo.ReadTableRows(ctx, strings.TrimSpace(table), limit)
}

// logActivity writes exactly one row per mutation attempt, success or
// failure. Log writes are best effort and never fail the operation.
func (s *Service) logActivity(ctx context.Context, action string, table string, recordID string, oldData any, newData any, opErr error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	entry := domain.ActivityLog{
		ID:        xid.New("log"),
		Actor:     actor.Username,
		Action:    action,
		TableName: table,
		RecordID:  recordID,
		OldData:   marshalSnapshot(oldData),
		NewData:   marshalSnapshot(newData),
		Status:    domain.LogStatusSuccess,
		CreatedAt: time.Now().UTC(),
	}
	if opErr != nil {
		entry.Status = domain.LogStatusFailed
		entry.ErrorMessage = opErr.Error()
	}

	if err := s.repo.CreateActivityLog(ctx, entry); err != nil {
		log.Printf("[audit] WARN: failed to write activity log action=%s table=%s record=%s: %v", action, table, recordID, err)
	}
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashCache.Invalidate(ctx); err != nil {
		log.Printf("[dashboard] WARN: cache invalidate failed: %v", err)
	}
}

func marshalSnapshot(data any) string {
	if data == nil {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(raw)
}

func invalidInput(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return fmt.Errorf("%w: field %s failed on %s", store.ErrInvalidInput, first.Field(), first.Tag())
	}
	return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
}

// parseDateRange turns optional YYYY-MM-DD bounds into a half-open UTC
// interval; the "to" day is included by pushing the upper bound to the
// next midnight.
func parseDateRange(fromStr string, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	if strings.TrimSpace(fromStr) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(fromStr))
		if err != nil {
			return from, to, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		from = parsed
	}
	if strings.TrimSpace(toStr) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(toStr))
		if err != nil {
			return from, to, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		to = parsed.Add(24 * time.Hour)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("%w: to must not be before from", store.ErrInvalidInput)
	}
	return from, to, nil
}

func toUserView(user domain.UserAccount) domain.UserView {
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	return domain.UserView{
		ID:          user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Permissions: perms,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}
}
