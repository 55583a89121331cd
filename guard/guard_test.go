package guard

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medstore-console/session"
)

var (
	loading   = session.Snapshot{State: session.StateUnknown}
	anonymous = session.Snapshot{State: session.StateAnonymous}
	signedIn  = session.Snapshot{State: session.StateAuthenticated, Identity: "a@b.com"}
)

func names(routes []Route) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Name)
	}
	return out
}

func TestDefaultTableLoads(t *testing.T) {
	table := DefaultTable()
	require.NotEmpty(t, table.Routes())

	r, ok := table.Match("/admin/customers/42")
	require.True(t, ok)
	assert.Equal(t, "Customer Details", r.Name)
}

func TestNothingVisibleWhileLoading(t *testing.T) {
	g := New(nil)
	assert.Empty(t, g.Visible(loading))
	assert.Equal(t, Loading, g.Decide("/", loading))
	assert.Equal(t, Loading, g.Decide("/admin", loading))
}

func TestAnonymousNavigation(t *testing.T) {
	g := New(nil)

	nav := names(g.VisibleIn("main", anonymous))
	assert.Equal(t, []string{"Home", "Prescription Reader", "Product Scanner", "Log In"}, nav)
	assert.Empty(t, g.VisibleIn("admin", anonymous))
}

func TestAuthenticatedNavigation(t *testing.T) {
	g := New(nil)

	nav := names(g.VisibleIn("main", signedIn))
	assert.Equal(t, []string{"Home", "Prescription Reader", "Payment Records", "Product Scanner", "Admin", "Logout"}, nav)
	assert.NotContains(t, nav, "Log In")

	sidebar := names(g.VisibleIn("admin", signedIn))
	assert.Equal(t, []string{"Main Dashboard", "Product Place", "Stock Management", "Customers", "Data Tables", "Profile"}, sidebar)
}

func TestLoginRouteDisappearsOnTransition(t *testing.T) {
	g := New(nil)
	store := session.New(nil)

	assert.Empty(t, g.Visible(store.Snapshot()))
	assert.Contains(t, names(g.Visible(anonymous)), "Log In")
	assert.NotContains(t, names(g.Visible(signedIn)), "Log In")
}

func TestDecide(t *testing.T) {
	g := New(nil)

	tests := []struct {
		path string
		snap session.Snapshot
		want Decision
	}{
		{"/", anonymous, Allow},
		{"/", signedIn, Allow},
		{"/login-page", anonymous, Allow},
		{"/login-page", signedIn, RedirectHome},
		{"/payment-records", anonymous, RequireLogin},
		{"/payment-records", signedIn, Allow},
		{"/admin", anonymous, RequireLogin},
		{"/admin/stock", anonymous, RequireLogin},
		{"/admin/stock", signedIn, Allow},
		{"/admin/customers/7", signedIn, Allow},
		{"/admin/product/abc", anonymous, RequireLogin},
		{"/admin/nowhere", anonymous, RequireLogin},
		{"/admin/nowhere", signedIn, NotFound},
		{"/contact-us", anonymous, Allow},
		{"/missing", anonymous, NotFound},
		{"/admin/stock/", signedIn, Allow},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.snap.State.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, g.Decide(tt.path, tt.snap))
		})
	}
}

func TestActiveRoute(t *testing.T) {
	g := New(nil)

	assert.Equal(t, "Home", g.ActiveRoute("/"))
	assert.Equal(t, "Stock Management", g.ActiveRoute("/admin/stock"))
	assert.Equal(t, "Customer Details", g.ActiveRoute("/admin/customers/9"))
	assert.Equal(t, "Admin", g.ActiveRoute("/admin/unknown"))
	assert.Equal(t, DefaultRouteName, g.ActiveRoute("/nowhere"))
	assert.True(t, g.Secondary("/admin/product/1"))
	assert.False(t, g.Secondary("/admin/stock"))
}

func TestLoadTableRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"empty":          "routes: []",
		"unknown field":  "routes:\n  - path: /\n    name: Home\n    role: admin\n",
		"unknown access": "routes:\n  - path: /\n    name: Home\n    access: admins\n",
		"relative path":  "routes:\n  - path: home\n    name: Home\n",
		"missing name":   "routes:\n  - path: /\n",
		"duplicate":      "routes:\n  - path: /a\n    name: A\n  - path: /a\n    name: B\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTable(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestInheritedAccessFromCustomTable(t *testing.T) {
	table, err := LoadTable(strings.NewReader(`
routes:
  - path: /reports
    name: Reports
    access: authenticated
  - path: /reports/daily
    name: Daily
    access: inherit
  - path: /reports/public
    name: Public
    access: none
`))
	require.NoError(t, err)
	g := New(table)

	assert.Equal(t, RequireLogin, g.Decide("/reports/daily", anonymous))
	assert.Equal(t, RequireLogin, g.Decide("/reports/unlisted", anonymous))
	assert.Equal(t, Allow, g.Decide("/reports/public", anonymous))
	assert.Equal(t, []string{"Public"}, names(g.Visible(anonymous)))
}

func TestRouteWithoutFlagIsAlwaysReachable(t *testing.T) {
	table, err := LoadTable(strings.NewReader(`
routes:
  - path: /reports
    name: Reports
    access: authenticated
  - path: /reports/open
    name: Open
`))
	require.NoError(t, err)
	g := New(table)

	assert.Equal(t, AccessNone, table.Access("/reports/open"))
	assert.Equal(t, Allow, g.Decide("/reports/open", anonymous))
	assert.Equal(t, Allow, g.Decide("/reports/open", signedIn))
	assert.Equal(t, []string{"Open"}, names(g.Visible(anonymous)))
}

func TestConsumeSignal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     Signal
		ok       bool
		stripped string
	}{
		{
			name:     "signup",
			raw:      "/?auth_success=true&auth_action=signup&email=a%40b.com&tab=2",
			want:     Signal{Kind: SignalSignedUp, Email: "a@b.com"},
			ok:       true,
			stripped: "/?tab=2",
		},
		{
			name:     "login",
			raw:      "/admin?auth_success=true&auth_action=login&email=a%40b.com",
			want:     Signal{Kind: SignalSignedIn, Email: "a@b.com"},
			ok:       true,
			stripped: "/admin",
		},
		{
			name:     "failed",
			raw:      "/login-page?error=auth_failed",
			want:     Signal{Kind: SignalFailed},
			ok:       true,
			stripped: "/login-page",
		},
		{
			name:     "success without email",
			raw:      "/?auth_success=true",
			ok:       false,
			stripped: "/?auth_success=true",
		},
		{
			name:     "unrelated error",
			raw:      "/?error=other",
			ok:       false,
			stripped: "/?error=other",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)

			sig, stripped, ok := ConsumeSignal(u)

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, sig)
			assert.Equal(t, tt.stripped, stripped.String())
			assert.Equal(t, tt.raw, u.String())
		})
	}
}

func TestConsumeSignalOnce(t *testing.T) {
	u, err := url.Parse("/?auth_success=true&email=a%40b.com")
	require.NoError(t, err)

	_, stripped, ok := ConsumeSignal(u)
	require.True(t, ok)

	_, _, ok = ConsumeSignal(stripped)
	assert.False(t, ok)
}
