// Package apiclient talks to the medical-store REST API on behalf of one
// browser. Every call carries the browser's upstream session cookies, which
// live in a private cookie jar that can be exported and restored between page
// loads.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medstore-console/session"
)

const tracerName = "medstore-console/apiclient"

// maxBodyBytes caps how much of a reply is read.
const maxBodyBytes = 1 << 20

// Error is a reply carrying an error payload from the API.
type Error struct {
	StatusCode int
	Message    string
	LoggedIn   bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// RejectionMessage returns the server-provided message verbatim.
func (e *Error) RejectionMessage() string { return e.Message }

// AlreadyLoggedIn reports whether the server flagged an existing session.
func (e *Error) AlreadyLoggedIn() bool { return e.LoggedIn }

// Client is a credentialed client for one browser's upstream session.
type Client struct {
	base   *url.URL
	http   *http.Client
	jar    http.CookieJar
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc for transport settings. The client's jar is replaced
// by the Client's own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			copied := *hc
			c.http = &copied
		}
	}
}

// WithCredentials restores cookies exported by Credentials.
func WithCredentials(creds map[string]string) Option {
	return func(c *Client) {
		if len(creds) == 0 {
			return
		}
		cookies := make([]*http.Cookie, 0, len(creds))
		for name, value := range creds {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		}
		c.jar.SetCookies(c.base, cookies)
	}
}

// New returns a Client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("parse api url: unsupported scheme %q", base.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{},
		jar:    jar,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Jar = c.jar
	return c, nil
}

// Credentials exports the upstream cookies held for the API origin.
func (c *Client) Credentials() map[string]string {
	cookies := c.jar.Cookies(c.base)
	if len(cookies) == 0 {
		return nil
	}
	out := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		out[ck.Name] = ck.Value
	}
	return out
}

type checkLoginResponse struct {
	Email string `json:"email"`
}

// CheckLogin returns the email bound to the current session, or "".
func (c *Client) CheckLogin(ctx context.Context) (string, error) {
	var out checkLoginResponse
	if err := c.do(ctx, "CheckLogin", http.MethodGet, "check-login", nil, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Email), nil
}

// UserInfo fetches the profile record for email.
func (c *Client) UserInfo(ctx context.Context, email string) (session.Profile, error) {
	out := session.Profile{}
	if err := c.do(ctx, "UserInfo", http.MethodGet, url.PathEscape(email)+"/user_info", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type updateProfileResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UpdateProfile sends a partial profile for email.
func (c *Client) UpdateProfile(ctx context.Context, email string, patch session.Profile) error {
	var out updateProfileResponse
	if err := c.do(ctx, "UpdateProfile", http.MethodPut, url.PathEscape(email)+"/update_profile", patch, &out); err != nil {
		return err
	}
	if !out.Success {
		return &Error{StatusCode: http.StatusOK, Message: out.Error}
	}
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string `json:"message"`
	User    any    `json:"user"`
	Email   string `json:"email"`
}

// identity reads the identity from either the user or the email field. user
// is an email string on current servers and an object on older ones.
func (r authResponse) identity() string {
	switch u := r.User.(type) {
	case string:
		if strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u)
		}
	case map[string]any:
		if email, ok := u["email"].(string); ok && strings.TrimSpace(email) != "" {
			return strings.TrimSpace(email)
		}
	}
	return strings.TrimSpace(r.Email)
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (session.Reply, error) {
	var out authResponse
	if err := c.do(ctx, "Login", http.MethodPost, "user/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return session.Reply{}, err
	}
	return session.Reply{Identity: out.identity(), Message: out.Message}, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, username, email, password string) (session.Reply, error) {
	var out authResponse
	body := signupRequest{Username: username, Email: email, Password: password}
	if err := c.do(ctx, "Signup", http.MethodPost, "user/signup", body, &out); err != nil {
		return session.Reply{}, err
	}
	return session.Reply{Identity: out.identity(), Message: out.Message}, nil
}

// Logout ends the upstream session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "Logout", http.MethodGet, "logout", nil, nil)
}

type errorResponse struct {
	Error    string `json:"error"`
	LoggedIn bool   `json:"logged_in"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "apiclient."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.base.ResolveReference(&url.URL{Path: path})

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload errorResponse
		if len(raw) > 0 && json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.LoggedIn = payload.LoggedIn
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// IsStatus reports whether err is an API reply with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
