// Package session holds the console's view of who is logged in.
//
// A Store is created once per page load. It starts in StateUnknown, leaves it
// after the first identity check and never returns to it. Views read the
// current Snapshot and subscribe to changes instead of keeping their own copy.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCheckTimeout bounds the bootstrap identity check.
	DefaultCheckTimeout = 4 * time.Second
	// DefaultRequestTimeout bounds every other call to the identity API.
	DefaultRequestTimeout = 10 * time.Second
)

// State is the position of a Store in its lifecycle.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable copy of the Store state.
type Snapshot struct {
	State    State
	Identity string
	Profile  Profile
	// ProfileErr records a failed profile fetch. The identity stays valid.
	ProfileErr error
}

// Loading reports whether the bootstrap identity check is still pending.
func (s Snapshot) Loading() bool {
	return s.State == StateUnknown
}

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != ""
}

// Option configures a Store.
type Option func(*Store)

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithLogger sets the logger used for non-fatal failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the single source of truth for the logged-in identity and profile.
type Store struct {
	backend        Backend
	checkTimeout   time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	state      State
	identity   string
	profile    Profile
	profileErr error
	subs       map[int]func(Snapshot)
	nextSub    int
}

// New returns a Store in StateUnknown.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:        backend,
		checkTimeout:   DefaultCheckTimeout,
		requestTimeout: DefaultRequestTimeout,
		logger:         slog.Default(),
		profile:        Profile{},
		subs:           make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.state,
		Identity:   s.identity,
		Profile:    s.profile.Clone(),
		ProfileErr: s.profileErr,
	}
}

// Subscribe registers fn to run after every state change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// update applies mutate under the lock, then notifies subscribers outside it.
func (s *Store) update(mutate func()) {
	s.mu.Lock()
	mutate()
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// CheckSession asks the identity API who is logged in. An absent identity, a
// failure or a timeout all resolve to StateAnonymous; nothing is returned
// because an anonymous visitor is not a fault.
func (s *Store) CheckSession(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	identity, err := s.backend.CheckLogin(checkCtx)
	cancel()

	identity = strings.TrimSpace(identity)
	if err != nil || identity == "" {
		if err != nil {
			s.logger.InfoContext(ctx, "login check failed", "error", err)
		}
		s.update(func() {
			s.state = StateAnonymous
			s.identity = ""
			s.profile = Profile{}
			s.profileErr = nil
		})
		return
	}

	s.update(func() {
		s.state = StateAuthenticated
		if s.identity != identity {
			s.profile = Profile{}
		}
		s.identity = identity
	})
	s.FetchProfile(ctx, identity)
}

// FetchProfile loads the profile for identity. On failure the identity is kept,
// the profile stays empty and ProfileErr is recorded.
func (s *Store) FetchProfile(ctx context.Context, identity string) {
	if strings.TrimSpace(identity) == "" {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	profile, err := s.backend.UserInfo(reqCtx, identity)
	cancel()

	s.update(func() {
		if s.identity != identity {
			// the session changed while the request was in flight
			return
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to fetch user information", "identity", identity, "error", err)
			s.profile = Profile{}
			s.profileErr = &Error{Kind: KindTransport, Message: "Failed to fetch user information", Err: err}
			return
		}
		s.profile = profile.Clone()
		s.profileErr = nil
	})
}

// Login signs in with creds. On success the identity is stored immediately
// and the Store resynchronizes with the server; on failure the state is left
// untouched and an *Error is returned.
func (s *Store) Login(ctx context.Context, creds Credentials) (Result, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return Result{}, validationError("Email and Password are required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	reply, err := s.backend.Login(reqCtx, email, creds.Password)
	cancel()
	if err != nil {
		sessErr := classify(err, "Login failed")
		s.logger.InfoContext(ctx, "login rejected", "kind", sessErr.Kind.String(), "error", err)
		return Result{}, sessErr
	}

	identity := firstNonEmpty(reply.Identity, email)
	s.authenticate(identity)
	s.Resync(ctx)
	return Result{Identity: identity, Message: firstNonEmpty(reply.Message, "Login successful")}, nil
}

// Signup registers a new account. Validation runs before any request: the
// password must match its confirmation and no field may be empty.
func (s *Store) Signup(ctx context.Context, reg Registration) (Result, error) {
	if reg.Password != reg.ConfirmPassword {
		return Result{}, validationError("Passwords don't match")
	}
	username := strings.TrimSpace(reg.Username)
	email := strings.TrimSpace(reg.Email)
	if username == "" || email == "" || reg.Password == "" {
		return Result{}, validationError("All fields are required")
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	reply, err := s.backend.Signup(reqCtx, username, email, reg.Password)
	cancel()
	if err != nil {
		sessErr := classify(err, "Signup failed")
		s.logger.InfoContext(ctx, "signup rejected",
			"kind", sessErr.Kind.String(),
			"already_logged_in", sessErr.AlreadyLoggedIn,
			"error", err,
		)
		return Result{}, sessErr
	}

	identity := firstNonEmpty(reply.Identity, email)
	s.authenticate(identity)
	s.Resync(ctx)
	return Result{Identity: identity, Message: firstNonEmpty(reply.Message, "Signup successful!")}, nil
}

// Logout ends the session. The server call is best effort: the Store always
// ends anonymous, whatever the outcome.
func (s *Store) Logout(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	err := s.backend.Logout(reqCtx)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "logout failed", "error", err)
	}
	s.update(func() {
		s.state = StateAnonymous
		s.identity = ""
		s.profile = Profile{}
		s.profileErr = nil
	})
}

// UpdateProfile sends the changed profile fields and refetches the profile on
// success.
func (s *Store) UpdateProfile(ctx context.Context, patch Profile) (Result, error) {
	identity := s.Snapshot().Identity
	if identity == "" {
		return Result{}, &Error{Kind: KindValidation, Message: "Not logged in", Err: ErrNotLoggedIn}
	}
	if len(patch) == 0 {
		return Result{Identity: identity}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	err := s.backend.UpdateProfile(reqCtx, identity, patch)
	cancel()
	if err != nil {
		fallback := "Failed to update user information"
		var rej rejection
		if errors.As(err, &rej) {
			fallback = "Update failed"
		}
		sessErr := classify(err, fallback)
		s.logger.WarnContext(ctx, "user update error", "identity", identity, "error", err)
		return Result{}, sessErr
	}

	s.FetchProfile(ctx, identity)
	return Result{Identity: identity, Message: "Profile updated"}, nil
}

// Resync re-runs the identity check and propagates the result to every
// subscriber. It replaces a full page reload after a mutation.
func (s *Store) Resync(ctx context.Context) {
	s.CheckSession(ctx)
}

func (s *Store) authenticate(identity string) {
	s.update(func() {
		if s.identity != identity {
			s.profile = Profile{}
			s.profileErr = nil
		}
		s.state = StateAuthenticated
		s.identity = identity
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
