package guard

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed routes.yaml
var defaultRoutes []byte

// Access is the session requirement of a route.
type Access string

const (
	// AccessInherit takes the access of the closest ancestor route.
	AccessInherit       Access = "inherit"
	AccessNone          Access = "none"
	AccessAuthenticated Access = "authenticated"
	AccessAnonymousOnly Access = "anonymous-only"
)

// Route is one entry of the route table.
type Route struct {
	Path      string `yaml:"path"`
	Name      string `yaml:"name"`
	Layout    string `yaml:"layout"`
	Access    Access `yaml:"access"`
	Hidden    bool   `yaml:"hidden"`
	Secondary bool   `yaml:"secondary"`
}

// Table is a validated, read-only route table.
type Table struct {
	routes []Route
}

type tableFile struct {
	Routes []Route `yaml:"routes"`
}

// DefaultTable returns the built-in console routes.
func DefaultTable() *Table {
	t, err := LoadTable(bytes.NewReader(defaultRoutes))
	if err != nil {
		panic(fmt.Sprintf("guard: embedded route table: %v", err))
	}
	return t
}

// LoadTableFile reads a route table from a YAML file.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}

// LoadTable parses a YAML route table. Unknown fields are rejected.
func LoadTable(r io.Reader) (*Table, error) {
	var file tableFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	if err := validateRoutes(file.Routes); err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}
	return &Table{routes: file.Routes}, nil
}

func validateRoutes(routes []Route) error {
	if len(routes) == 0 {
		return fmt.Errorf("routes list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		if !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("route %d: path %q must start with /", i, r.Path)
		}
		if r.Path != "/" && strings.HasSuffix(r.Path, "/") {
			return fmt.Errorf("route %d: path %q must not end with /", i, r.Path)
		}
		if r.Name == "" {
			return fmt.Errorf("route %d: name is required", i)
		}
		switch r.Access {
		case "", AccessInherit, AccessNone, AccessAuthenticated, AccessAnonymousOnly:
		default:
			return fmt.Errorf("route %q: unknown access %q", r.Path, r.Access)
		}
		if seen[r.Path] {
			return fmt.Errorf("route %q: duplicate path", r.Path)
		}
		seen[r.Path] = true
	}
	return nil
}

// Routes returns a copy of every route in table order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match returns the route whose path matches p. Segments written as {name}
// match any single non-empty segment. Exact matches win over patterns.
func (t *Table) Match(p string) (Route, bool) {
	p = cleanPath(p)
	for _, r := range t.routes {
		if r.Path == p {
			return r, true
		}
	}
	for _, r := range t.routes {
		if strings.Contains(r.Path, "{") && matchPattern(r.Path, p) {
			return r, true
		}
	}
	return Route{}, false
}

// Access returns the effective access of p. A route without a flag is always
// reachable. Routes marked inherit, and paths not in the table, take the flag
// of their closest ancestor.
func (t *Table) Access(p string) Access {
	p = cleanPath(p)
	if r, ok := t.Match(p); ok && r.Access != AccessInherit {
		return flagOf(r)
	}
	for parent := parentPath(p); parent != ""; parent = parentPath(parent) {
		if parent == "/" {
			// the home route does not gate its descendants
			break
		}
		if r, ok := t.Match(parent); ok && r.Access != AccessInherit {
			return flagOf(r)
		}
	}
	return AccessNone
}

func flagOf(r Route) Access {
	if r.Access == "" {
		return AccessNone
	}
	return r.Access
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func parentPath(p string) string {
	if p == "/" || p == "" {
		return ""
	}
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func matchPattern(pattern, p string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(p, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}
