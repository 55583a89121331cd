// Package guard decides which console views are reachable for a session.
//
// The guard holds no state of its own: every answer is derived from the route
// table and the session snapshot passed in, so it can never drift from the
// Store.
package guard

import (
	"medstore-console/session"
)

// DefaultRouteName is shown in the navbar when no route matches.
const DefaultRouteName = "Main Dashboard"

// Decision is the outcome of a navigation.
type Decision int

const (
	// Loading means the bootstrap identity check has not resolved yet.
	Loading Decision = iota
	Allow
	// RequireLogin means the route needs a session the visitor lacks.
	RequireLogin
	// RedirectHome means the route is for anonymous visitors only.
	RedirectHome
	NotFound
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case RequireLogin:
		return "require-login"
	case RedirectHome:
		return "redirect-home"
	default:
		return "not-found"
	}
}

// Guard evaluates a route table against session snapshots.
type Guard struct {
	table *Table
}

// New returns a Guard over table. A nil table means DefaultTable.
func New(table *Table) *Guard {
	if table == nil {
		table = DefaultTable()
	}
	return &Guard{table: table}
}

// Table returns the route table.
func (g *Guard) Table() *Table {
	return g.table
}

// Visible returns the navigable routes whose access is satisfied by snap.
// Nothing is visible while the session is still loading.
func (g *Guard) Visible(snap session.Snapshot) []Route {
	if snap.Loading() {
		return nil
	}
	var out []Route
	for _, r := range g.table.routes {
		if r.Hidden {
			continue
		}
		if allowed(g.table.Access(r.Path), snap) {
			out = append(out, r)
		}
	}
	return out
}

// VisibleIn is Visible restricted to one layout.
func (g *Guard) VisibleIn(layout string, snap session.Snapshot) []Route {
	var out []Route
	for _, r := range g.Visible(snap) {
		if r.Layout == layout {
			out = append(out, r)
		}
	}
	return out
}

// Decide returns what a navigation to path should do given snap. Access is
// checked before existence so gated prefixes do not leak which paths exist.
func (g *Guard) Decide(path string, snap session.Snapshot) Decision {
	if snap.Loading() {
		return Loading
	}
	switch g.table.Access(path) {
	case AccessAuthenticated:
		if !snap.Authenticated() {
			return RequireLogin
		}
	case AccessAnonymousOnly:
		if snap.Authenticated() {
			return RedirectHome
		}
	}
	if _, ok := g.table.Match(path); !ok {
		return NotFound
	}
	return Allow
}

// ActiveRoute returns the display name for path, falling back to its closest
// listed ancestor and then DefaultRouteName.
func (g *Guard) ActiveRoute(path string) string {
	path = cleanPath(path)
	if path == "/" {
		if r, ok := g.table.Match(path); ok {
			return r.Name
		}
		return DefaultRouteName
	}
	for p := path; p != "/" && p != ""; p = parentPath(p) {
		if r, ok := g.table.Match(p); ok {
			return r.Name
		}
	}
	return DefaultRouteName
}

// Secondary reports whether path renders the secondary navbar.
func (g *Guard) Secondary(path string) bool {
	r, ok := g.table.Match(path)
	return ok && r.Secondary
}

func allowed(access Access, snap session.Snapshot) bool {
	switch access {
	case AccessAuthenticated:
		return snap.Authenticated()
	case AccessAnonymousOnly:
		return !snap.Authenticated()
	default:
		return true
	}
}
