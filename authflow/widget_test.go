package authflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"medstore-console/guard"
	"medstore-console/i18n"
	"medstore-console/session"
)

type rejected struct{ msg string }

func (r *rejected) Error() string            { return r.msg }
func (r *rejected) RejectionMessage() string { return r.msg }

// fakeBackend is a cookie-less identity API. Login can be held open with gate.
type fakeBackend struct {
	mu       sync.Mutex
	identity string

	logins  atomic.Int32
	signups atomic.Int32

	gate     chan struct{}
	loginErr error
}

func (f *fakeBackend) CheckLogin(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity, nil
}

func (f *fakeBackend) UserInfo(ctx context.Context, identity string) (session.Profile, error) {
	return session.Profile{"username": "alice"}, nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, identity string, patch session.Profile) error {
	return nil
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (session.Reply, error) {
	f.logins.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.loginErr != nil {
		return session.Reply{}, f.loginErr
	}
	f.mu.Lock()
	f.identity = email
	f.mu.Unlock()
	return session.Reply{Identity: email, Message: "Login successful"}, nil
}

func (f *fakeBackend) Signup(ctx context.Context, username, email, password string) (session.Reply, error) {
	f.signups.Add(1)
	f.mu.Lock()
	f.identity = email
	f.mu.Unlock()
	return session.Reply{Identity: email, Message: "ok"}, nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.identity = ""
	f.mu.Unlock()
	return nil
}

func anonymousStore(t *testing.T, backend *fakeBackend) *session.Store {
	t.Helper()
	store := session.New(backend)
	store.CheckSession(context.Background())
	require.Equal(t, session.StateAnonymous, store.Snapshot().State)
	return store
}

func TestToggleTwiceKeepsFieldsAndClearsMessages(t *testing.T) {
	backend := &fakeBackend{loginErr: &rejected{msg: "Invalid email or password"}}
	w := New(anonymousStore(t, backend), Page)

	w.SetField(FieldEmail, "a@b.com")
	w.SetField(FieldPassword, "wrong")
	require.True(t, w.Submit(context.Background()))
	require.Equal(t, "Invalid email or password", w.State().Error)

	w.Toggle()
	assert.Equal(t, SignUp, w.State().Mode)
	w.Toggle()

	st := w.State()
	assert.Equal(t, SignIn, st.Mode)
	assert.Empty(t, st.Error)
	assert.Empty(t, st.Success)
	assert.Equal(t, "a@b.com", st.Field(FieldEmail))
	assert.Equal(t, "wrong", st.Field(FieldPassword))
}

func TestSetFieldClearsMessages(t *testing.T) {
	backend := &fakeBackend{loginErr: &rejected{msg: "nope"}}
	w := New(anonymousStore(t, backend), Page)
	w.SetField(FieldEmail, "a@b.com")
	w.SetField(FieldPassword, "x")
	w.Submit(context.Background())
	require.NotEmpty(t, w.State().Error)

	assert.True(t, w.SetField(FieldPassword, "y"))
	assert.Empty(t, w.State().Error)
	assert.False(t, w.SetField("role", "admin"))
}

func TestSuccessfulLoginClosesReactively(t *testing.T) {
	backend := &fakeBackend{}
	store := anonymousStore(t, backend)

	var closed atomic.Int32
	w := New(store, Popup, WithOnClose(func() { closed.Add(1) }))
	w.SetField(FieldEmail, "a@b.com")
	w.SetField(FieldPassword, "secret")

	require.True(t, w.Submit(context.Background()))

	st := w.State()
	assert.True(t, st.Closed)
	assert.False(t, st.Submitting)
	assert.Equal(t, "Login successful", st.Success)
	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, "a@b.com", store.Snapshot().Identity)

	assert.False(t, w.Submit(context.Background()))
	assert.Equal(t, int32(1), backend.logins.Load())
}

func TestSignupSendsThroughStore(t *testing.T) {
	backend := &fakeBackend{}
	store := anonymousStore(t, backend)
	w := New(store, Page, WithMode(SignUp), WithFields(map[string]string{
		FieldUsername:        "alice",
		FieldEmail:           "a@b.com",
		FieldPassword:        "x",
		FieldConfirmPassword: "x",
	}))

	require.True(t, w.Submit(context.Background()))

	assert.Equal(t, int32(1), backend.signups.Load())
	assert.Equal(t, "a@b.com", store.Snapshot().Identity)
	assert.True(t, w.State().Closed)
}

func TestSignupValidationNeverReachesServer(t *testing.T) {
	backend := &fakeBackend{}
	w := New(anonymousStore(t, backend), Page, WithMode(SignUp), WithFields(map[string]string{
		FieldUsername:        "alice",
		FieldEmail:           "a@b.com",
		FieldPassword:        "x",
		FieldConfirmPassword: "y",
	}))

	require.True(t, w.Submit(context.Background()))

	assert.Equal(t, "Passwords don't match", w.State().Error)
	assert.Equal(t, int32(0), backend.signups.Load())
	assert.False(t, w.State().Closed)
}

func TestTransportFailureUsesFallback(t *testing.T) {
	backend := &fakeBackend{loginErr: errors.New("connection refused")}
	w := New(anonymousStore(t, backend), Page, WithFields(map[string]string{
		FieldEmail:    "a@b.com",
		FieldPassword: "secret",
	}))

	require.True(t, w.Submit(context.Background()))
	assert.Equal(t, "Login failed", w.State().Error)
}

func TestSecondSubmitWhileInFlightIsNoop(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	w := New(anonymousStore(t, backend), Page, WithFields(map[string]string{
		FieldEmail:    "a@b.com",
		FieldPassword: "secret",
	}))

	done := make(chan bool)
	go func() { done <- w.Submit(context.Background()) }()

	require.Eventually(t, func() bool { return w.State().Submitting }, time.Second, time.Millisecond)
	assert.False(t, w.Submit(context.Background()))

	close(backend.gate)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), backend.logins.Load())
	assert.False(t, w.State().Submitting)
}

func TestMountedWhileAuthenticatedStartsClosed(t *testing.T) {
	backend := &fakeBackend{identity: "a@b.com"}
	store := session.New(backend)
	store.CheckSession(context.Background())

	var closed atomic.Int32
	w := New(store, Popup, WithOnClose(func() { closed.Add(1) }))

	assert.True(t, w.State().Closed)
	assert.Equal(t, int32(1), closed.Load())
}

func TestCloseUnsubscribes(t *testing.T) {
	backend := &fakeBackend{}
	store := anonymousStore(t, backend)

	var closed atomic.Int32
	w := New(store, Popup, WithOnClose(func() { closed.Add(1) }))
	w.Close()
	w.Close()

	other := New(store, Page, WithFields(map[string]string{FieldEmail: "a@b.com", FieldPassword: "s"}))
	require.True(t, other.Submit(context.Background()))

	assert.Equal(t, int32(1), closed.Load())
}

func TestApplySignal(t *testing.T) {
	backend := &fakeBackend{}
	w := New(anonymousStore(t, backend), Page, WithProviderURL("http://api.test/login/google"))

	w.ApplySignal(guard.Signal{Kind: guard.SignalFailed})
	assert.Equal(t, "Google authentication failed. Please try again or use email/password.", w.State().Error)
	assert.Equal(t, "http://api.test/login/google", w.ProviderURL())

	w.ApplySignal(guard.Signal{})
	assert.NotEmpty(t, w.State().Error)
}

func TestLocalizedFallback(t *testing.T) {
	backend := &fakeBackend{loginErr: errors.New("timeout")}
	es := i18n.Default().For(language.Spanish)
	w := New(anonymousStore(t, backend), Page,
		WithCopy(es),
		WithFields(map[string]string{FieldEmail: "a@b.com", FieldPassword: "s"}),
	)

	w.Submit(context.Background())
	assert.Equal(t, "No se pudo iniciar sesión", w.State().Error)
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, SignUp, ParseMode("signup"))
	assert.Equal(t, SignUp, ParseMode(" SignUp "))
	assert.Equal(t, SignIn, ParseMode(""))
	assert.Equal(t, SignIn, ParseMode("other"))
	assert.Equal(t, []string{FieldEmail, FieldPassword}, ModeFields(SignIn))
}
