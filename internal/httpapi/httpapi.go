package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/permission"
	"gudangku/backend/internal/service"
	"gudangku/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/units", a.secured(permission.ProductsView, a.handleUnits))
	mux.HandleFunc("/api/v1/units/", a.secured(permission.UnitsManage, a.handleUnitActions))
	mux.HandleFunc("/api/v1/products", a.secured(permission.ProductsView, a.handleProducts))
	mux.HandleFunc("/api/v1/products/", a.secured(permission.ProductsView, a.handleProductActions))
	mux.HandleFunc("/api/v1/purchases", a.secured(permission.PurchasesView, a.handlePurchases))
	mux.HandleFunc("/api/v1/customers", a.secured(permission.CustomersManage, a.handleCustomers))
	mux.HandleFunc("/api/v1/customers/", a.secured(permission.CustomersManage, a.handleCustomerActions))
	mux.HandleFunc("/api/v1/sales", a.secured(permission.SalesView, a.handleSales))
	mux.HandleFunc("/api/v1/sales/", a.secured(permission.SalesView, a.handleSaleActions))
	mux.HandleFunc("/api/v1/dashboard/summary", a.secured(permission.DashboardView, a.handleDashboardSummary))
	mux.HandleFunc("/api/v1/dashboard/trend", a.secured(permission.DashboardView, a.handleDashboardTrend))
	mux.HandleFunc("/api/v1/dashboard/low-stock", a.secured(permission.DashboardView, a.handleLowStock))
	mux.HandleFunc("/api/v1/logs", a.secured(permission.LogsView, a.handleActivityLogs))
	mux.HandleFunc("/api/v1/users", a.secured(permission.UsersManage, a.handleUsers))
	mux.HandleFunc("/api/v1/users/", a.secured(permission.UsersManage, a.handleUserActions))
	mux.HandleFunc("/api/v1/permissions", a.secured(permission.UsersManage, a.handlePermissions))
	mux.HandleFunc("/api/v1/license", a.secured(permission.LicenseManage, a.handleLicense))
	mux.HandleFunc("/api/v1/settings/ui", a.requireAuth(a.handleUIConfig))
	mux.HandleFunc("/api/v1/admin/tables", a.secured(permission.DatabaseView, a.handleAdminTables))
	mux.HandleFunc("/api/v1/admin/tables/", a.secured(permission.DatabaseView, a.handleAdminTableRows))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeErr(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

// secured chains bearer authentication with an exact permission check.
// Admins hold every permission implicitly.
func (a *API) secured(perm permission.Permission, next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := service.ActorFromContext(r.Context())
		if !ok || !permission.Allowed(actor, perm) {
			writeErr(w, http.StatusForbidden, errors.New("permission denied"))
			return
		}
		next(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeErr(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeErr(w, http.StatusUnauthorized, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (a *API) handleUnits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		units, err := a.service.ListUnits(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"units": units})
	case http.MethodPost:
		if !a.requirePermInline(w, r, permission.UnitsManage) {
			return
		}
		var req domain.UnitCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		unit, err := a.service.CreateUnit(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"unit": unit})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUnitActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/units/")
	if id == "" {
		writeErr(w, http.StatusBadRequest, errors.New("unit id required"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.UnitUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		unit, err := a.service.UpdateUnit(r.Context(), id, req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"unit": unit})
	case http.MethodDelete:
		if err := a.service.DeleteUnit(r.Context(), id); err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !a.requirePermInline(w, r, permission.ProductsManage) {
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/products/")
	if tail == "" {
		writeErr(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	if id, ok := strings.CutSuffix(tail, "/restock"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if !a.requirePermInline(w, r, permission.ProductsManage) {
			return
		}
		var req domain.RestockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.RestockProduct(r.Context(), strings.Trim(id, "/"), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"product": product})
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), tail)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		if !a.requirePermInline(w, r, permission.ProductsManage) {
			return
		}
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), tail, req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if !a.requirePermInline(w, r, permission.ProductsManage) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), tail); err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": tail})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	productID := r.URL.Query().Get("product_id")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	entries, err := a.service.ListPurchases(r.Context(), productID, limit)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"purchases": entries})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := a.service.ListCustomers(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"customers": customers})
	case http.MethodPost:
		var req domain.CustomerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"customer": customer})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomerActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/customers/")
	if id == "" {
		writeErr(w, http.StatusBadRequest, errors.New("customer id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		customer, err := a.service.GetCustomer(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodPatch:
		var req domain.CustomerUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.UpdateCustomer(r.Context(), id, req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"customer": customer})
	case http.MethodDelete:
		if err := a.service.DeleteCustomer(r.Context(), id); err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

		sales, err := a.service.ListSales(r.Context(), from, to, limit)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"sales": sales})
	case http.MethodPost:
		if !a.requirePermInline(w, r, permission.SalesCreate) {
			return
		}
		var req domain.SaleCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		sale, err := a.service.CreateSale(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"sale": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/sales/")
	if id == "" {
		writeErr(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.GetSale(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"sale": sale})
	case http.MethodDelete:
		if !a.requirePermInline(w, r, permission.SalesDelete) {
			return
		}
		sale, err := a.service.DeleteSale(r.Context(), id)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": sale})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.GetDashboardSummary(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (a *API) handleDashboardTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	trend, err := a.service.GetSalesTrend(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"trend": trend})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListLowStockProducts(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := domain.ActivityLogFilter{
		Username:  query.Get("username"),
		TableName: query.Get("table"),
		Action:    query.Get("action"),
		Status:    query.Get("status"),
		Page:      parsePositiveLimit(query.Get("page"), 1, 0),
		Limit:     parsePositiveLimit(query.Get("limit"), 50, 200),
	}
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errors.New("from must be YYYY-MM-DD"))
			return
		}
		filter.From = parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errors.New("to must be YYYY-MM-DD"))
			return
		}
		filter.To = parsed.Add(24 * time.Hour)
	}

	page, err := a.service.ListActivityLogs(r.Context(), filter)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.service.ListUsers(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.service.CreateUser(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUserActions(w http.ResponseWriter, r *http.Request) {
	username := pathTail(r.URL.Path, "/api/v1/users/")
	if username == "" {
		writeErr(w, http.StatusBadRequest, errors.New("username required"))
		return
	}
	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.service.UpdateUser(r.Context(), username, req)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"permissions": a.service.ListPermissions(r.Context())})
}

func (a *API) handleLicense(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status, err := a.service.LicenseStatus(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, status)
	case http.MethodPost:
		var req domain.LicenseActivateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		status, err := a.service.ActivateLicense(r.Context(), req)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, status)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleUIConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		merged, err := a.service.GetUIConfig(r.Context())
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, merged)
	case http.MethodPut:
		if !a.requirePermInline(w, r, permission.SettingsManage) {
			return
		}
		var override map[string]any
		if err := decodeJSON(r, &override); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		merged, err := a.service.SaveUIConfig(r.Context(), override)
		if err != nil {
			writeServiceErr(w, err)
			return
		}
		writeData(w, http.StatusOK, merged)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAdminTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tables, err := a.service.ListTables(r.Context())
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"tables": tables})
}

func (a *API) handleAdminTableRows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	table := pathTail(r.URL.Path, "/api/v1/admin/tables/")
	if table == "" {
		writeErr(w, http.StatusBadRequest, errors.New("table name required"))
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	rows, err := a.service.ReadTableRows(r.Context(), table, limit)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"table": table, "rows": rows})
}

// requirePermInline covers routes whose GET is open to a viewer permission
// but whose mutations need a stronger one.
func (a *API) requirePermInline(w http.ResponseWriter, r *http.Request, perm permission.Permission) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok || !permission.Allowed(actor, perm) {
		writeErr(w, http.StatusForbidden, errors.New("permission denied"))
		return false
	}
	return true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func pathTail(path string, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeServiceErr maps the repository error taxonomy onto HTTP statuses.
func writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeErr(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict):
		writeErr(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err)
	default:
		writeErr(w, http.StatusInternalServerError, err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeErr(w http.ResponseWriter, status int, err error) {
	// 5xx messages stay generic so internal details never reach clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}

	body := map[string]any{
		"success": false,
		"error":   map[string]any{"message": msg},
	}
	var stockErr *store.StockError
	if errors.As(err, &stockErr) {
		body["out_of_stock"] = stockErr.Items
	}

	writeJSON(w, status, body)
}

func writeData(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    payload,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
