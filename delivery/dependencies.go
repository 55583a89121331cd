package delivery

import (
	"context"
	"log/slog"
	"net/http"

	"medstore-console/guard"
	"medstore-console/i18n"
	"medstore-console/session"
)

// AppDependencies defines the contract that the delivery layer (HTTP handlers)
// expects from the core application layer.
type AppDependencies interface {
	// ConsoleMiddleware bootstraps the session Store of every page load.
	ConsoleMiddleware(next http.Handler) http.Handler

	StoreFromContext(ctx context.Context) (*session.Store, bool)

	// Persist saves upstream credentials changed during the request.
	Persist(ctx context.Context) error
	// Forget drops the stored credentials of the current browser.
	Forget(ctx context.Context) error

	// ClaimForm and ReleaseForm guard a form instance against double submission.
	ClaimForm(ctx context.Context, formID string) (bool, error)
	ReleaseForm(ctx context.Context, formID string)

	Guard() *guard.Guard
	Copy(r *http.Request) *i18n.Copy
	ProviderURL() string
	CookieSecure() bool
	Logger() *slog.Logger
}
