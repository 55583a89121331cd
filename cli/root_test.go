package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "check", "routes"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestServeFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"addr", "api-url", "backend"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "routes", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestRoutesAnonymous(t *testing.T) {
	out, err := execute(t, "routes", "--format", "json")
	require.NoError(t, err)

	var rows []RouteRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	visible := map[string]bool{}
	for _, r := range rows {
		visible[r.Path] = r.Visible
	}
	assert.True(t, visible["/login-page"])
	assert.False(t, visible["/admin"])
	assert.False(t, visible["/contact-us"])
}

func TestRoutesAuthenticatedText(t *testing.T) {
	out, err := execute(t, "routes", "--as", "authenticated")
	require.NoError(t, err)
	assert.Contains(t, out, "PATH")
	assert.Regexp(t, `/admin/stock\s+Stock Management\s+admin\s+authenticated\s+true`, out)
	assert.Regexp(t, `/login-page\s+Log In\s+main\s+anonymous-only\s+false`, out)
}

func TestRoutesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`routes:
  - path: /
    name: Home
    layout: main
    access: none
`), 0o600))

	out, err := execute(t, "routes", "-f", path, "--format", "json")
	require.NoError(t, err)
	var rows []RouteRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Home", rows[0].Name)
}

func TestRoutesRejectsUnknownState(t *testing.T) {
	_, err := execute(t, "routes", "--as", "admin")
	assert.Error(t, err)
}

func TestCheckAnonymous(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"logged_in": false}`))
	}))
	defer api.Close()

	out, err := execute(t, "check", "--api-url", api.URL, "--format", "json")
	require.NoError(t, err)

	var res CheckResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "anonymous", res.State)
}

func TestCheckUnreachableDegradesToAnonymous(t *testing.T) {
	api := httptest.NewServer(http.NotFoundHandler())
	api.Close()

	out, err := execute(t, "check", "--api-url", api.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "state: anonymous")
}

func TestCheckRejectsBadBackend(t *testing.T) {
	_, err := execute(t, "check", "--backend", "ldap")
	assert.Error(t, err)
}
