package app

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"medstore-console/session"
	"medstore-console/tokens"
	"medstore-console/vault"
)

// A private type for the context key to prevent collisions.
type contextKey string

// pageContextKey is the key used to store the page load in the request context.
const pageContextKey contextKey = "page"

// formClaimTTL bounds how long a submitted form instance stays claimed.
const formClaimTTL = time.Minute

// page is one page load: a browser workspace, its upstream backend and the
// session Store bootstrapped for this request.
type page struct {
	workspace string
	backend   Backend
	store     *session.Store
	saved     map[string]string
	forgotten bool
}

// ConsoleMiddleware runs the bootstrap of every page load. It identifies the
// browser by its console cookie, restores the upstream credentials, creates a
// fresh Store and resolves it with one identity check before the handler runs.
func (a *App) ConsoleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		workspace := a.workspace(w, r)

		creds, err := a.vault.Load(ctx, workspace)
		if err != nil && !errors.Is(err, vault.ErrNotFound) {
			a.logger.WarnContext(ctx, "failed to load credentials", "error", err)
		}

		backend, err := a.backends(creds)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to create identity backend", "error", err)
			http.Redirect(w, r, "/error?reason="+url.QueryEscape("The identity service is misconfigured."), http.StatusSeeOther)
			return
		}

		store := session.New(backend,
			session.WithCheckTimeout(a.cfg.CheckTimeout),
			session.WithRequestTimeout(a.cfg.RequestTimeout),
			session.WithLogger(a.logger),
		)
		store.CheckSession(ctx)

		p := &page{
			workspace: workspace,
			backend:   backend,
			store:     store,
			saved:     maps.Clone(creds),
		}
		ctx = context.WithValue(ctx, pageContextKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))

		// handlers persist before redirecting; this catches cookies rotated
		// by plain page loads
		if err := a.persist(ctx, p); err != nil {
			a.logger.WarnContext(ctx, "failed to persist credentials", "error", err)
		}
	})
}

// workspace returns the browser's workspace id, issuing a new console cookie
// when the request has no valid one.
func (a *App) workspace(w http.ResponseWriter, r *http.Request) string {
	if ck, err := r.Cookie(a.cfg.CookieName); err == nil {
		workspace, err := a.signer.Verify(ck.Value)
		if err == nil {
			return workspace
		}
		if !errors.Is(err, tokens.ErrInvalidToken) {
			a.logger.WarnContext(r.Context(), "console cookie verification failed", "error", err)
		}
	}

	workspace := uuid.NewString()
	token, err := a.signer.Issue(workspace)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "failed to issue console cookie", "error", err)
		return workspace
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(tokens.DefaultTTL),
	})
	return workspace
}

func pageFromContext(ctx context.Context) (*page, bool) {
	p, ok := ctx.Value(pageContextKey).(*page)
	return p, ok
}

// StoreFromContext returns the Store of the current page load.
func (a *App) StoreFromContext(ctx context.Context) (*session.Store, bool) {
	p, ok := pageFromContext(ctx)
	if !ok {
		return nil, false
	}
	return p.store, true
}

// Persist saves the upstream credentials of the current page load.
func (a *App) Persist(ctx context.Context) error {
	p, ok := pageFromContext(ctx)
	if !ok {
		return session.ErrNotLoggedIn
	}
	return a.persist(ctx, p)
}

func (a *App) persist(ctx context.Context, p *page) error {
	if p.forgotten {
		return nil
	}
	current := p.backend.Credentials()
	if maps.Equal(current, p.saved) {
		return nil
	}
	if err := a.vault.Save(ctx, p.workspace, current); err != nil {
		return err
	}
	p.saved = maps.Clone(current)
	return nil
}

// Forget drops the stored credentials of the current browser.
func (a *App) Forget(ctx context.Context) error {
	p, ok := pageFromContext(ctx)
	if !ok {
		return nil
	}
	p.saved = nil
	p.forgotten = true
	return a.vault.Delete(ctx, p.workspace)
}

// ClaimForm marks a form instance as submitted. It reports false when the
// same instance is already being processed.
func (a *App) ClaimForm(ctx context.Context, formID string) (bool, error) {
	p, ok := pageFromContext(ctx)
	if !ok || formID == "" {
		return true, nil
	}
	return a.vault.Claim(ctx, p.workspace+":"+formID, formClaimTTL)
}

// ReleaseForm lets a form instance be submitted again.
func (a *App) ReleaseForm(ctx context.Context, formID string) {
	p, ok := pageFromContext(ctx)
	if !ok || formID == "" {
		return
	}
	if err := a.vault.Release(ctx, p.workspace+":"+formID); err != nil {
		a.logger.WarnContext(ctx, "failed to release form", "error", err)
	}
}
