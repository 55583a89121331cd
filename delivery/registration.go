package delivery

import (
	"encoding/json"
	"net/http"

	"medstore-console/delivery/model"
	"medstore-console/session"
)

// apiSignupHandler is the JSON counterpart of the sign-up form. Password
// confirmation and required fields are checked by the Store before any
// request reaches the identity API.
func (h *HTTPEndpoint) apiSignupHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.app.StoreFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, model.SubmitAuthResponse{Error: "session not found in context"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576) // 1MB limit
	var req model.SubmitSignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.SubmitAuthResponse{Error: "invalid request body"})
		return
	}

	res, err := store.Signup(r.Context(), session.Registration{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	h.writeAuthResult(w, r, res, err, h.app.Copy(r).T("form.signup_failed", "Signup failed"))
}
