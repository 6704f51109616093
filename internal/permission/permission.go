// Package permission defines the enumerated capability set checked by the
// HTTP layer. Checks are exact membership, never string-prefix matching.
package permission

import "gudangku/backend/internal/domain"

type Permission string

const (
	ProductsView    Permission = "products.view"
	ProductsManage  Permission = "products.manage"
	UnitsManage     Permission = "units.manage"
	CustomersManage Permission = "customers.manage"
	SalesCreate     Permission = "sales.create"
	SalesDelete     Permission = "sales.delete"
	SalesView       Permission = "sales.view"
	PurchasesView   Permission = "purchases.view"
	DashboardView   Permission = "dashboard.view"
	LogsView        Permission = "logs.view"
	SettingsManage  Permission = "settings.manage"
	UsersManage     Permission = "users.manage"
	LicenseManage   Permission = "license.manage"
	DatabaseView    Permission = "database.view"
)

// All lists every known permission, in display order.
var All = []Permission{
	ProductsView, ProductsManage, UnitsManage, CustomersManage,
	SalesView, SalesCreate, SalesDelete, PurchasesView,
	DashboardView, LogsView, SettingsManage, UsersManage,
	LicenseManage, DatabaseView,
}

// StaffDefaults is the permission set granted to new staff accounts when
// none is specified explicitly.
var StaffDefaults = []Permission{
	ProductsView, SalesView, SalesCreate, CustomersManage, DashboardView,
}

// Valid reports whether raw names an enumerated permission.
func Valid(raw string) bool {
	for _, p := range All {
		if string(p) == raw {
			return true
		}
	}
	return false
}

// Allowed reports whether the actor holds the given permission. Admins hold
// every permission implicitly; everyone else needs exact membership.
func Allowed(actor domain.Actor, perm Permission) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	for _, held := range actor.Permissions {
		if held == string(perm) {
			return true
		}
	}
	return false
}

// Strings converts a permission slice to its string form for persistence.
func Strings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

// Normalize filters raw permission names down to the known set, dropping
// duplicates and unknown values.
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if !Valid(r) || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
