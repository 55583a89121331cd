// Package authflow is the sign-in/sign-up form shared by the login page and
// the login popup.
//
// A Widget never closes itself after a successful submission. It watches the
// session Store and closes when an identity appears, so every consumer of the
// Store sees the same transition.
package authflow

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"medstore-console/guard"
	"medstore-console/i18n"
	"medstore-console/session"
)

// Mode selects which form is shown.
type Mode int

const (
	SignIn Mode = iota
	SignUp
)

func (m Mode) String() string {
	if m == SignUp {
		return "signup"
	}
	return "signin"
}

// ParseMode maps "signup" to SignUp and anything else to SignIn.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "signup") {
		return SignUp
	}
	return SignIn
}

// Presentation is where the widget is mounted.
type Presentation int

const (
	Page Presentation = iota
	Popup
)

func (p Presentation) String() string {
	if p == Popup {
		return "popup"
	}
	return "page"
}

// Form field names.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
)

// Fields lists every field the widget accepts, in display order.
var Fields = []string{FieldUsername, FieldEmail, FieldPassword, FieldConfirmPassword}

// ModeFields returns the fields rendered for m.
func ModeFields(m Mode) []string {
	if m == SignUp {
		return Fields
	}
	return []string{FieldEmail, FieldPassword}
}

func knownField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Submitter is the part of the session Store the widget uses.
type Submitter interface {
	Login(ctx context.Context, creds session.Credentials) (session.Result, error)
	Signup(ctx context.Context, reg session.Registration) (session.Result, error)
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) (cancel func())
}

// State is a copy of the widget state. Error and Success are never both set.
type State struct {
	Mode         Mode
	Presentation Presentation
	Fields       map[string]string
	Error        string
	Success      string
	Submitting   bool
	Closed       bool
}

// Field returns the value of a field.
func (s State) Field(name string) string {
	return s.Fields[name]
}

// Option configures a Widget.
type Option func(*Widget)

// WithProviderURL sets the "continue with provider" target.
func WithProviderURL(u string) Option {
	return func(w *Widget) { w.providerURL = u }
}

// WithOnClose registers fn to run once when the widget closes.
func WithOnClose(fn func()) Option {
	return func(w *Widget) {
		if fn != nil {
			w.onClose = append(w.onClose, fn)
		}
	}
}

// WithMode sets the initial mode.
func WithMode(m Mode) Option {
	return func(w *Widget) { w.state.Mode = m }
}

// WithFields restores field values, for example from a posted form. Unknown
// field names are ignored.
func WithFields(fields map[string]string) Option {
	return func(w *Widget) {
		for name, value := range fields {
			if knownField(name) {
				w.state.Fields[name] = value
			}
		}
	}
}

// WithCopy sets the language of widget messages.
func WithCopy(c *i18n.Copy) Option {
	return func(w *Widget) {
		if c != nil {
			w.copy = c
		}
	}
}

// Widget is one mounted instance of the auth form.
type Widget struct {
	store       Submitter
	providerURL string
	copy        *i18n.Copy
	onClose     []func()

	mu          sync.Mutex
	state       State
	unsubscribe func()
}

// New mounts a widget on store. A widget mounted while a session already
// exists starts closed.
func New(store Submitter, presentation Presentation, opts ...Option) *Widget {
	w := &Widget{
		store: store,
		state: State{
			Mode:         SignIn,
			Presentation: presentation,
			Fields:       make(map[string]string, len(Fields)),
		},
		unsubscribe: func() {},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.copy == nil {
		w.copy = i18n.Default().For(language.MustParse(i18n.BaseLocale))
	}

	cancel := store.Subscribe(func(snap session.Snapshot) {
		if snap.Authenticated() {
			w.close()
		}
	})
	w.mu.Lock()
	w.unsubscribe = cancel
	closed := w.state.Closed
	w.mu.Unlock()
	if closed {
		cancel()
		return w
	}

	if store.Snapshot().Authenticated() {
		w.close()
	}
	return w
}

// State returns a copy of the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.state
	st.Fields = maps.Clone(w.state.Fields)
	return st
}

// ProviderURL is the full-page redirect target of the provider button.
func (w *Widget) ProviderURL() string {
	return w.providerURL
}

// Toggle switches between SignIn and SignUp.
func (w *Widget) Toggle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Mode == SignIn {
		w.setModeLocked(SignUp)
	} else {
		w.setModeLocked(SignIn)
	}
}

// SetMode switches to m. Messages are cleared and field values kept.
func (w *Widget) SetMode(m Mode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setModeLocked(m)
}

func (w *Widget) setModeLocked(m Mode) {
	w.state.Mode = m
	w.state.Error = ""
	w.state.Success = ""
}

// SetField edits one field and clears any message. It reports false for an
// unknown field.
func (w *Widget) SetField(name, value string) bool {
	if !knownField(name) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Fields[name] = value
	w.state.Error = ""
	w.state.Success = ""
	return true
}

// Submit sends the current mode's fields to the Store. It is a no-op returning
// false while a previous submission is in flight or after the widget closed.
// Failures end up in State.Error; Submit never panics on them.
func (w *Widget) Submit(ctx context.Context) bool {
	w.mu.Lock()
	if w.state.Submitting || w.state.Closed {
		w.mu.Unlock()
		return false
	}
	w.state.Submitting = true
	w.state.Error = ""
	w.state.Success = ""
	mode := w.state.Mode
	fields := maps.Clone(w.state.Fields)
	w.mu.Unlock()

	var (
		res      session.Result
		err      error
		fallback string
	)
	if mode == SignUp {
		fallback = w.copy.T("form.signup_failed", "Signup failed")
		res, err = w.store.Signup(ctx, session.Registration{
			Username:        fields[FieldUsername],
			Email:           fields[FieldEmail],
			Password:        fields[FieldPassword],
			ConfirmPassword: fields[FieldConfirmPassword],
		})
	} else {
		fallback = w.copy.T("form.login_failed", "Login failed")
		res, err = w.store.Login(ctx, session.Credentials{
			Email:    fields[FieldEmail],
			Password: fields[FieldPassword],
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Submitting = false
	if err != nil {
		var sessErr *session.Error
		if errors.As(err, &sessErr) && sessErr.Kind == session.KindTransport {
			w.state.Error = fallback
		} else {
			w.state.Error = session.Message(err, fallback)
		}
		return true
	}
	w.state.Success = res.Message
	return true
}

// ApplySignal shows the outcome of a provider round trip carried on the URL.
func (w *Widget) ApplySignal(sig guard.Signal) {
	notice := w.copy.Notice(sig)
	if notice == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if sig.Kind == guard.SignalFailed {
		w.state.Error = notice
		w.state.Success = ""
		return
	}
	w.state.Success = notice
	w.state.Error = ""
}

// Close dismisses the widget.
func (w *Widget) Close() {
	w.close()
}

func (w *Widget) close() {
	w.mu.Lock()
	if w.state.Closed {
		w.mu.Unlock()
		return
	}
	w.state.Closed = true
	unsubscribe := w.unsubscribe
	callbacks := w.onClose
	w.mu.Unlock()

	unsubscribe()
	for _, fn := range callbacks {
		fn()
	}
}
