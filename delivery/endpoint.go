package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"medstore-console/delivery/model"
	"medstore-console/session"
)

// sessionHandler returns the page's session snapshot and the routes it can
// reach.
func (h *HTTPEndpoint) sessionHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.app.StoreFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "session not found in context"})
		return
	}
	snap := store.Snapshot()

	resp := model.SessionResponse{
		State:  snap.State.String(),
		Routes: []model.RouteResponse{},
	}
	if snap.Authenticated() {
		resp.Identity = snap.Identity
		resp.DisplayName = snap.Profile.DisplayName(snap.Identity)
		resp.ShopName = snap.Profile.ShopName()
		resp.Avatar = snap.Profile.Avatar()
	}
	if snap.ProfileErr != nil {
		resp.ProfileErr = snap.ProfileErr.Error()
	}
	for _, route := range h.app.Guard().Visible(snap) {
		resp.Routes = append(resp.Routes, model.RouteResponse{Path: route.Path, Name: route.Name, Layout: route.Layout})
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusForError maps a Store error to an HTTP status.
func statusForError(err error) int {
	var sessErr *session.Error
	if !errors.As(err, &sessErr) {
		return http.StatusInternalServerError
	}
	switch sessErr.Kind {
	case session.KindValidation:
		return http.StatusBadRequest
	case session.KindRejected:
		if sessErr.AlreadyLoggedIn {
			return http.StatusConflict
		}
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
