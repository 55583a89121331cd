package delivery

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"medstore-console/authflow"
	"medstore-console/delivery/model"
	"medstore-console/guard"
	"medstore-console/session"
)

// newWidget mounts an auth widget on the page's Store.
func (h *HTTPEndpoint) newWidget(r *http.Request, store *session.Store, presentation authflow.Presentation, opts ...authflow.Option) *authflow.Widget {
	base := []authflow.Option{
		authflow.WithCopy(h.app.Copy(r)),
		authflow.WithProviderURL(h.app.ProviderURL()),
	}
	return authflow.New(store, presentation, append(base, opts...)...)
}

func (h *HTTPEndpoint) authForm(r *http.Request, widget *authflow.Widget, state authflow.State, formID, returnTo string) *authFormData {
	return &authFormData{
		State:       state,
		SignUp:      state.Mode == authflow.SignUp,
		FormID:      formID,
		ReturnTo:    returnTo,
		Popup:       state.Presentation == authflow.Popup,
		CloseURL:    redirectTarget(returnTo),
		ProviderURL: widget.ProviderURL(),
		Copy:        h.app.Copy(r),
	}
}

// popupFor returns the login overlay when an anonymous visitor opened it with
// ?login=popup on a public page.
func (h *HTTPEndpoint) popupFor(r *http.Request, store *session.Store) *authFormData {
	q := r.URL.Query()
	if q.Get("login") != "popup" || store.Snapshot().Authenticated() {
		return nil
	}
	q.Del("login")
	here := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}

	widget := h.newWidget(r, store, authflow.Popup)
	defer widget.Close()
	return h.authForm(r, widget, widget.State(), uuid.NewString(), safeReturnTo(here.RequestURI()))
}

// renderAuthForm renders state either as the login page or, for the popup
// presentation, as the overlay fragment.
func (h *HTTPEndpoint) renderAuthForm(w http.ResponseWriter, r *http.Request, store *session.Store, form *authFormData, status int) {
	if form.Popup && r.Method == http.MethodGet {
		h.render(w, r, popupTemplate, "popup", status, form)
		return
	}
	data := h.layout(r, store.Snapshot(), form)
	if form.State.Error != "" || form.State.Success != "" {
		// the widget already shows the notice
		data.Notice = ""
	}
	h.render(w, r, loginTemplate, "layout", status, data)
}

// loginHandler handles the GET request for the login page.
func (h *HTTPEndpoint) loginHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	presentation := authflow.Page
	if q.Get("popup") == "1" {
		presentation = authflow.Popup
	}

	widget := h.newWidget(r, store, presentation, authflow.WithMode(authflow.ParseMode(q.Get("mode"))))
	defer widget.Close()
	if f, ok := flashFromContext(r.Context()); ok && !f.LoggedOut {
		widget.ApplySignal(f.Signal)
	}

	form := h.authForm(r, widget, widget.State(), uuid.NewString(), safeReturnTo(q.Get("return_to")))
	h.renderAuthForm(w, r, store, form, http.StatusOK)
}

// loginSubmitHandler handles the POST request from the auth form. The action
// field distinguishes a submission from a mode switch.
func (h *HTTPEndpoint) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.storeFromRequest(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	form := r.PostForm
	ctx := r.Context()
	logger := h.app.Logger()

	presentation := authflow.Page
	if form.Get("popup") == "1" {
		presentation = authflow.Popup
	}
	fields := make(map[string]string, len(authflow.Fields))
	for _, name := range authflow.Fields {
		if value := form.Get(name); value != "" {
			fields[name] = value
		}
	}
	widget := h.newWidget(r, store, presentation,
		authflow.WithMode(authflow.ParseMode(form.Get("mode"))),
		authflow.WithFields(fields),
	)
	defer widget.Close()

	formID := form.Get("form_id")
	returnTo := safeReturnTo(form.Get("return_to"))

	if form.Get("action") == "toggle" {
		widget.Toggle()
		h.renderAuthForm(w, r, store, h.authForm(r, widget, widget.State(), formID, returnTo), http.StatusOK)
		return
	}

	claimed, err := h.app.ClaimForm(ctx, formID)
	if err != nil {
		logger.WarnContext(ctx, "failed to claim form, submitting anyway", "error", err)
		claimed = true
	}
	if !claimed {
		state := widget.State()
		state.Submitting = true
		h.renderAuthForm(w, r, store, h.authForm(r, widget, state, formID, returnTo), http.StatusConflict)
		return
	}

	widget.Submit(ctx)
	if err := h.app.Persist(ctx); err != nil {
		logger.WarnContext(ctx, "failed to persist credentials", "error", err)
	}

	h.app.ReleaseForm(ctx, formID)

	state := widget.State()
	if state.Closed {
		h.setFlash(w, flash{Signal: signalFor(state.Mode, store.Snapshot().Identity)})
		http.Redirect(w, r, redirectTarget(returnTo), http.StatusSeeOther)
		return
	}

	status := http.StatusOK
	if state.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	h.renderAuthForm(w, r, store, h.authForm(r, widget, state, uuid.NewString(), returnTo), status)
}

// providerHandler navigates the whole page to the external provider.
func (h *HTTPEndpoint) providerHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.app.ProviderURL(), http.StatusFound)
}

// apiLoginHandler is the JSON counterpart of the sign-in form.
func (h *HTTPEndpoint) apiLoginHandler(w http.ResponseWriter, r *http.Request) {
	store, ok := h.app.StoreFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusInternalServerError, model.SubmitAuthResponse{Error: "session not found in context"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576) // 1MB limit
	var req model.SubmitLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.SubmitAuthResponse{Error: "invalid request body"})
		return
	}

	res, err := store.Login(r.Context(), session.Credentials{Email: req.Email, Password: req.Password})
	h.writeAuthResult(w, r, res, err, h.app.Copy(r).T("form.login_failed", "Login failed"))
}

func (h *HTTPEndpoint) writeAuthResult(w http.ResponseWriter, r *http.Request, res session.Result, err error, fallback string) {
	if perr := h.app.Persist(r.Context()); perr != nil {
		h.app.Logger().WarnContext(r.Context(), "failed to persist credentials", "error", perr)
	}
	if err != nil {
		writeJSON(w, statusForError(err), model.SubmitAuthResponse{Error: session.Message(err, fallback)})
		return
	}
	writeJSON(w, http.StatusOK, model.SubmitAuthResponse{Identity: res.Identity, Message: res.Message})
}

func signalFor(mode authflow.Mode, identity string) guard.Signal {
	kind := guard.SignalSignedIn
	if mode == authflow.SignUp {
		kind = guard.SignalSignedUp
	}
	return guard.Signal{Kind: kind, Email: identity}
}
