package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gudangku/backend/internal/domain"
)

func TestAdminHoldsEverything(t *testing.T) {
	admin := domain.Actor{Username: "admin", Role: domain.RoleAdmin}
	for _, p := range All {
		assert.True(t, Allowed(admin, p), "admin should hold %s", p)
	}
}

func TestStaffNeedsExactMembership(t *testing.T) {
	staff := domain.Actor{
		Username:    "kasir",
		Role:        domain.RoleStaff,
		Permissions: []string{string(SalesCreate), string(ProductsView)},
	}
	assert.True(t, Allowed(staff, SalesCreate))
	assert.True(t, Allowed(staff, ProductsView))
	assert.False(t, Allowed(staff, SalesDelete))
	assert.False(t, Allowed(staff, SettingsManage))
}

func TestNoPrefixMatching(t *testing.T) {
	// Holding "settings.manage" must not grant other settings-ish names,
	// and a bare "settings" grants nothing.
	staff := domain.Actor{Role: domain.RoleStaff, Permissions: []string{"settings"}}
	assert.False(t, Allowed(staff, SettingsManage))
}

func TestNormalizeDropsUnknownAndDuplicates(t *testing.T) {
	got := Normalize([]string{
		string(SalesCreate), "settings.*", string(SalesCreate), "bogus", string(LogsView),
	})
	assert.Equal(t, []string{string(SalesCreate), string(LogsView)}, got)
}
