package delivery

import (
	"context"
	"net/http"
	"net/url"

	"medstore-console/guard"
	"medstore-console/i18n"
)

// flashCookieName holds a notice for exactly one following page load.
const flashCookieName = "medstore_flash"

type contextKey string

const flashContextKey contextKey = "flash"

const flashLoggedOut = "logged_out"

var signalNames = map[guard.SignalKind]string{
	guard.SignalSignedIn: "signed_in",
	guard.SignalSignedUp: "signed_up",
	guard.SignalFailed:   "auth_failed",
}

// flash is a one-time notice carried across a redirect.
type flash struct {
	Signal    guard.Signal
	LoggedOut bool
}

func (f flash) notice(c *i18n.Copy) string {
	if f.LoggedOut {
		return c.T("notice.logged_out", "You have been logged out.")
	}
	return c.Notice(f.Signal)
}

func (f flash) encode() string {
	v := url.Values{}
	if f.LoggedOut {
		v.Set("kind", flashLoggedOut)
		return v.Encode()
	}
	v.Set("kind", signalNames[f.Signal.Kind])
	if f.Signal.Email != "" {
		v.Set("email", f.Signal.Email)
	}
	return v.Encode()
}

func decodeFlash(raw string) (flash, bool) {
	v, err := url.ParseQuery(raw)
	if err != nil {
		return flash{}, false
	}
	kind := v.Get("kind")
	if kind == flashLoggedOut {
		return flash{LoggedOut: true}, true
	}
	for k, name := range signalNames {
		if name == kind {
			return flash{Signal: guard.Signal{Kind: k, Email: v.Get("email")}}, true
		}
	}
	return flash{}, false
}

func (h *HTTPEndpoint) setFlash(w http.ResponseWriter, f flash) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    f.encode(),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.app.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the pending notice.
func (h *HTTPEndpoint) takeFlash(w http.ResponseWriter, r *http.Request) (flash, bool) {
	ck, err := r.Cookie(flashCookieName)
	if err != nil {
		return flash{}, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.app.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
	return decodeFlash(ck.Value)
}

func flashFromContext(ctx context.Context) (flash, bool) {
	f, ok := ctx.Value(flashContextKey).(flash)
	return f, ok
}

// signalMiddleware turns the one-time authentication parameters of a provider
// redirect into a flash notice and reloads the page without them, so a
// refresh never shows the notice twice.
func (h *HTTPEndpoint) signalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if sig, stripped, ok := guard.ConsumeSignal(r.URL); ok {
				h.setFlash(w, flash{Signal: sig})
				http.Redirect(w, r, stripped.RequestURI(), http.StatusSeeOther)
				return
			}
		}
		if f, ok := h.takeFlash(w, r); ok {
			r = r.WithContext(context.WithValue(r.Context(), flashContextKey, f))
		}
		next.ServeHTTP(w, r)
	})
}

// guardMiddleware applies the route guard to the bootstrapped session.
func (h *HTTPEndpoint) guardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, ok := h.storeFromRequest(w, r)
		if !ok {
			return
		}
		decision := h.app.Guard().Decide(r.URL.Path, store.Snapshot())
		h.app.Logger().DebugContext(r.Context(), "route guard", "path", r.URL.Path, "decision", decision.String())

		switch decision {
		case guard.Allow:
			next.ServeHTTP(w, r)
		case guard.RequireLogin:
			target := "/login-page?return_to=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
		case guard.RedirectHome:
			http.Redirect(w, r, "/", http.StatusSeeOther)
		case guard.NotFound:
			h.notFoundHandler(w, r)
		default:
			// ConsoleMiddleware resolves the session before the guard runs, so
			// the blocked request is the loading state.
			h.app.Logger().ErrorContext(r.Context(), "route guard saw an unresolved session", "path", r.URL.Path)
			h.errorHandler(w, r)
		}
	})
}
