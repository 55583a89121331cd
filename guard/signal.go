package guard

import (
	"net/url"
	"strings"
)

// Query parameters set by the provider redirect.
const (
	ParamAuthSuccess = "auth_success"
	ParamAuthAction  = "auth_action"
	ParamEmail       = "email"
	ParamError       = "error"

	authFailed = "auth_failed"
)

// SignalKind identifies a one-time authentication result.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalSignedIn
	SignalSignedUp
	SignalFailed
)

// Signal is the outcome of an external sign-in carried on the URL.
type Signal struct {
	Kind  SignalKind
	Email string
}

// ConsumeSignal reads the one-time authentication signal from u. It returns
// the signal, a copy of u with the signal parameters removed, and whether a
// signal was present. u is not modified.
func ConsumeSignal(u *url.URL) (Signal, *url.URL, bool) {
	stripped := *u
	q := u.Query()

	var sig Signal
	switch {
	case q.Get(ParamAuthSuccess) == "true" && strings.TrimSpace(q.Get(ParamEmail)) != "":
		sig.Email = strings.TrimSpace(q.Get(ParamEmail))
		sig.Kind = SignalSignedIn
		if q.Get(ParamAuthAction) == "signup" {
			sig.Kind = SignalSignedUp
		}
	case q.Get(ParamError) == authFailed:
		sig.Kind = SignalFailed
	default:
		return Signal{}, &stripped, false
	}

	for _, key := range []string{ParamAuthSuccess, ParamAuthAction, ParamEmail, ParamError} {
		q.Del(key)
	}
	stripped.RawQuery = q.Encode()
	return sig, &stripped, true
}
