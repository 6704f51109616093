package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gudangku/backend/internal/service"
	"gudangku/backend/internal/store/memory"
)

// newTestAPI builds a full API over the in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin123")
	t.Setenv("SEED_STAFF_PASSWORD", "staff123")

	svc := service.New(memory.NewSeeded(), nil, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, svc)
	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func loginAs(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data envelope, got %v", body)
	}
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token, got %v", data)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success:true, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != false {
		t.Fatalf("expected success:false, got %v", body)
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "badpass"})
	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListWithToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["products"] == nil {
		t.Fatalf("expected products key, got %v", body)
	}
}

func TestStaffCannotManageUsers(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStaffCannotDeleteSales(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodDelete, "/api/v1/sales/sale-anything", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestAdminImpliesEveryPermission(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "admin", "admin123")

	for _, path := range []string{
		"/api/v1/users",
		"/api/v1/logs",
		"/api/v1/admin/tables",
		"/api/v1/license",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("admin GET %s: expected 200, got %d (body: %s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateSale_OutOfStockEnvelope(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{
			{"product_id": "prod-beras-01", "qty": "10000"},
		},
		"paid_amount": "0",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := decodeEnvelope(t, rec)
	shortages, _ := body["out_of_stock"].([]any)
	if len(shortages) != 1 {
		t.Fatalf("expected top-level out_of_stock entry, got %v", body)
	}
	if _, hasMessage := body["error"].(map[string]any); !hasMessage {
		t.Fatalf("expected error message alongside out_of_stock, got %v", body)
	}
}

func TestCreateAndDeleteSaleRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", admin, map[string]any{
		"customer_id": "cust-warung-01",
		"items": []map[string]any{
			{"product_id": "prod-gula-01", "qty": "2"},
		},
		"paid_amount": "35000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]any)
	sale, _ := data["sale"].(map[string]any)
	saleID, _ := sale["id"].(string)
	if saleID == "" {
		t.Fatalf("expected sale id, got %v", body)
	}

	del := doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+saleID, admin, nil)
	if del.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", del.Code, del.Body.String())
	}

	get := doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+saleID, admin, nil)
	if get.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", get.Code)
	}
}

func TestDuplicateUnitReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")

	payload := map[string]string{"name": "Lusin", "abbreviation": "lsn"}
	first := doJSON(t, handler, http.MethodPost, "/api/v1/units", admin, payload)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}
	second := doJSON(t, handler, http.MethodPost, "/api/v1/units", admin, payload)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", second.Code, second.Body.String())
	}
}

func TestUIConfigReadableByStaff(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	staff := loginAs(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/settings/ui", staff, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	put := doJSON(t, handler, http.MethodPut, "/api/v1/settings/ui", staff, map[string]any{
		"appearance": map[string]any{"theme": "dark"},
	})
	if put.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff save, got %d", put.Code)
	}
}

func TestAdminTableRows_UnknownTable(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	admin := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/admin/tables/secrets", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown table, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}
