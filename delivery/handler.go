package delivery

import (
	"bytes"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"medstore-console/session"
)

// Layout names used in the route table.
const (
	mainLayout  = "main"
	adminLayout = "admin"
)

// HTTPEndpoint holds a reference to the core application.
type HTTPEndpoint struct {
	app AppDependencies
}

// storeFromRequest returns the Store bootstrapped by the console middleware.
func (h *HTTPEndpoint) storeFromRequest(w http.ResponseWriter, r *http.Request) (*session.Store, bool) {
	store, ok := h.app.StoreFromContext(r.Context())
	if !ok {
		// This should not happen if the middleware is working.
		h.app.Logger().ErrorContext(r.Context(), "session store not found in context", "path", r.URL.Path)
		http.Redirect(w, r, "/error?reason="+url.QueryEscape("Your session could not be loaded."), http.StatusSeeOther)
		return nil, false
	}
	return store, true
}

// layout prepares the data shared by every page of the console layout.
func (h *HTTPEndpoint) layout(r *http.Request, snap session.Snapshot, content any) layoutData {
	g := h.app.Guard()
	c := h.app.Copy(r)
	data := layoutData{
		Title:         g.ActiveRoute(r.URL.Path),
		Secondary:     g.Secondary(r.URL.Path),
		Nav:           g.VisibleIn(mainLayout, snap),
		Authenticated: snap.Authenticated(),
		Copy:          c,
		Content:       content,
	}
	if snap.Authenticated() {
		data.DisplayName = snap.Profile.DisplayName(snap.Identity)
		data.Avatar = avatarURL(snap.Profile)
	}
	if f, ok := flashFromContext(r.Context()); ok {
		data.Notice = f.notice(c)
	}
	return data
}

// avatarURL marks the profile avatar as trusted. Profile.Avatar only returns
// web URLs, local paths and base64 raster data URLs.
func avatarURL(p session.Profile) template.URL {
	return template.URL(p.Avatar())
}

// render executes a layout template into a buffer so a failing template never
// leaves a half-written page behind.
func (h *HTTPEndpoint) render(w http.ResponseWriter, r *http.Request, tmpl *template.Template, name string, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.app.Logger().ErrorContext(r.Context(), "failed to execute template", "template", name, "path", r.URL.Path, "error", err)
		http.Error(w, "Failed to render the page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// homeHandler renders the home page and the public placeholder views.
func (h *HTTPEndpoint) homeHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	snap := store.Snapshot()
	data := h.layout(r, snap, nil)
	data.Popup = h.popupFor(r, store)
	h.render(w, r, homeTemplate, "layout", http.StatusOK, data)
}

func (h *HTTPEndpoint) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	data := errorPageData{Title: h.app.Copy(r).T("page.not_found", "Page not found")}
	data.Error.Reason = r.URL.Path
	h.render(w, r, errorTemplate, "error.html", http.StatusNotFound, data)
}

// errorHandler renders the error page. The reason comes from the query.
func (h *HTTPEndpoint) errorHandler(w http.ResponseWriter, r *http.Request) {
	data := errorPageData{Title: h.app.Copy(r).T("page.error", "Something went wrong")}
	data.Error.ID = r.URL.Query().Get("id")
	data.Error.Reason = r.URL.Query().Get("reason")

	// If no specific reason is provided, use a generic one.
	if data.Error.Reason == "" {
		data.Error.Reason = "An unexpected error occurred."
	}
	h.render(w, r, errorTemplate, "error.html", http.StatusInternalServerError, data)
}

// safeReturnTo accepts only local absolute paths.
func safeReturnTo(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return ""
	}
	return u.RequestURI()
}

func redirectTarget(returnTo string) string {
	if returnTo == "" {
		return "/"
	}
	return returnTo
}
