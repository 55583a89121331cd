package session

import "context"

// Reply is what the identity API answers to a successful mutation.
type Reply struct {
	// Identity is the server-side identity for the session, if the server returned one.
	Identity string
	Message  string
}

// Backend is the external identity API the Store synchronizes with.
//
// Rejections (the server answered with an error payload) should be returned as
// errors implementing RejectionMessage() string, and optionally
// AlreadyLoggedIn() bool. Anything else is treated as a transport failure.
type Backend interface {
	// CheckLogin returns the identity bound to the current credentials, or ""
	// when there is none.
	CheckLogin(ctx context.Context) (string, error)
	UserInfo(ctx context.Context, identity string) (Profile, error)
	UpdateProfile(ctx context.Context, identity string, patch Profile) error
	Login(ctx context.Context, email, password string) (Reply, error)
	Signup(ctx context.Context, username, email, password string) (Reply, error)
	Logout(ctx context.Context) error
}

// Credentials are the fields of a sign-in submission.
type Credentials struct {
	Email    string
	Password string
}

// Registration are the fields of a sign-up submission.
type Registration struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Result describes a successful Store mutation.
type Result struct {
	Identity string
	Message  string
}

type rejection interface {
	error
	RejectionMessage() string
}

type loggedInFlag interface {
	AlreadyLoggedIn() bool
}
