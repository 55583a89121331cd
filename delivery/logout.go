package delivery

import (
	"net/http"
)

// logoutHandler ends the session. The Store always ends anonymous, so the
// stored credentials are dropped whatever the identity API answered.
func (h *HTTPEndpoint) logoutHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	wasAuthenticated := store.Snapshot().Authenticated()
	store.Logout(ctx)
	if err := h.app.Forget(ctx); err != nil {
		h.app.Logger().WarnContext(ctx, "failed to forget credentials", "error", err)
	}
	if wasAuthenticated {
		h.setFlash(w, flash{LoggedOut: true})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
