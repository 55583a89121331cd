// Package kratos implements the console's identity backend on top of Ory
// Kratos native flows. The upstream session is a Kratos session token, kept
// per browser the same way the REST backend keeps cookies.
package kratos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ory "github.com/ory/client-go"

	"medstore-console/session"
)

// TokenKey is the credential name under which the session token is exported.
const TokenKey = "ory_session_token"

// Error carries a message Kratos attached to a rejected flow.
type Error struct {
	StatusCode int
	Message    string
	LoggedIn   bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("kratos: status %d: %s", e.StatusCode, e.Message)
}

// RejectionMessage returns the Kratos message verbatim.
func (e *Error) RejectionMessage() string { return e.Message }

// AlreadyLoggedIn reports whether a session already existed.
func (e *Error) AlreadyLoggedIn() bool { return e.LoggedIn }

// Backend is a session.Backend for one browser.
type Backend struct {
	client *ory.APIClient
	token  string
}

// NewClient builds a Kratos public API client for publicURL.
func NewClient(publicURL string, hc *http.Client) *ory.APIClient {
	conf := ory.NewConfiguration()
	conf.Servers = ory.ServerConfigurations{
		{URL: strings.TrimRight(publicURL, "/")},
	}
	if hc != nil {
		conf.HTTPClient = hc
	}
	return ory.NewAPIClient(conf)
}

// New returns a Backend restoring the session token from creds.
func New(client *ory.APIClient, creds map[string]string) *Backend {
	return &Backend{client: client, token: strings.TrimSpace(creds[TokenKey])}
}

// Credentials exports the session token.
func (b *Backend) Credentials() map[string]string {
	if b.token == "" {
		return nil
	}
	return map[string]string{TokenKey: b.token}
}

func (b *Backend) whoami(ctx context.Context) (*ory.Session, error) {
	if b.token == "" {
		return nil, nil
	}
	sess, resp, err := b.client.FrontendAPI.ToSession(ctx).XSessionToken(b.token).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, nil
		}
		return nil, fmt.Errorf("kratos whoami: %w", err)
	}
	if sess == nil || !sess.GetActive() {
		return nil, nil
	}
	return sess, nil
}

// CheckLogin returns the email trait of the active session, or "".
func (b *Backend) CheckLogin(ctx context.Context) (string, error) {
	sess, err := b.whoami(ctx)
	if err != nil || sess == nil {
		return "", err
	}
	identity := sess.GetIdentity()
	return traitString(identity.Traits, "email"), nil
}

// UserInfo maps the identity traits onto the console profile.
func (b *Backend) UserInfo(ctx context.Context, email string) (session.Profile, error) {
	sess, err := b.whoami(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &Error{StatusCode: http.StatusUnauthorized, Message: "No active session"}
	}
	identity := sess.GetIdentity()
	profile := session.Profile{"email": email}
	if traits, ok := identity.Traits.(map[string]interface{}); ok {
		for key, value := range traits {
			profile[key] = value
		}
		if _, ok := traits["username"]; !ok {
			if name := fullName(traits["name"]); name != "" {
				profile["username"] = name
			}
		}
	}
	return profile, nil
}

// UpdateProfile runs a native settings flow with the profile method.
func (b *Backend) UpdateProfile(ctx context.Context, email string, patch session.Profile) error {
	sess, err := b.whoami(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return &Error{StatusCode: http.StatusUnauthorized, Message: "Not logged in"}
	}

	flow, _, err := b.client.FrontendAPI.CreateNativeSettingsFlow(ctx).XSessionToken(b.token).Execute()
	if err != nil {
		return fmt.Errorf("kratos create settings flow: %w", err)
	}

	identity := sess.GetIdentity()
	traits := map[string]interface{}{"email": email}
	if current, ok := identity.Traits.(map[string]interface{}); ok {
		for key, value := range current {
			traits[key] = value
		}
	}
	for key, value := range patch {
		traits[key] = value
	}

	body := ory.UpdateSettingsFlowWithProfileMethodAsUpdateSettingsFlowBody(&ory.UpdateSettingsFlowWithProfileMethod{
		Method: "profile",
		Traits: traits,
	})
	_, resp, err := b.client.FrontendAPI.UpdateSettingsFlow(ctx).
		Flow(flow.Id).
		XSessionToken(b.token).
		UpdateSettingsFlowBody(body).
		Execute()
	if err != nil {
		return flowError(err, resp, "kratos update settings flow")
	}
	return nil
}

// Login runs a native login flow with the password method.
func (b *Backend) Login(ctx context.Context, email, password string) (session.Reply, error) {
	flow, _, err := b.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return session.Reply{}, fmt.Errorf("kratos create login flow: %w", err)
	}

	updateBody := ory.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	}
	result, resp, err := b.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(ory.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&updateBody)).
		Execute()
	if err != nil {
		return session.Reply{}, flowError(err, resp, "kratos update login flow")
	}

	if result.SessionToken != nil {
		b.token = *result.SessionToken
	}
	identity := result.Session.GetIdentity()
	return session.Reply{
		Identity: traitString(identity.Traits, "email"),
		Message:  "Login successful",
	}, nil
}

// Signup runs a native registration flow with the password method.
func (b *Backend) Signup(ctx context.Context, username, email, password string) (session.Reply, error) {
	active, err := b.whoami(ctx)
	if err != nil {
		return session.Reply{}, err
	}
	if active != nil {
		return session.Reply{}, &Error{
			StatusCode: http.StatusBadRequest,
			Message:    "A session is already active, log out before creating a new account",
			LoggedIn:   true,
		}
	}

	flow, _, err := b.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return session.Reply{}, fmt.Errorf("kratos create registration flow: %w", err)
	}

	updateBody := &ory.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits: map[string]interface{}{
			"email":    email,
			"username": username,
		},
	}
	result, resp, err := b.client.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(ory.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(updateBody)).
		Execute()
	if err != nil {
		return session.Reply{}, flowError(err, resp, "kratos update registration flow")
	}

	if result.SessionToken != nil {
		b.token = *result.SessionToken
	}
	return session.Reply{
		Identity: traitString(result.Identity.Traits, "email"),
		Message:  "User registered successfully",
	}, nil
}

// Logout revokes the session token. The local token is dropped even when
// Kratos cannot be reached.
func (b *Backend) Logout(ctx context.Context) error {
	if b.token == "" {
		return nil
	}
	token := b.token
	b.token = ""
	if _, err := b.client.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*ory.NewPerformNativeLogoutBody(token)).
		Execute(); err != nil {
		return fmt.Errorf("kratos logout: %w", err)
	}
	return nil
}

// flowError turns a failed flow update into a rejection when Kratos returned
// a flow with messages, and into a transport error otherwise.
func flowError(err error, resp *http.Response, op string) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	var genericError *ory.GenericOpenAPIError
	if errors.As(err, &genericError) {
		var ui *ory.UiContainer
		switch model := genericError.Model().(type) {
		case *ory.LoginFlow:
			ui = &model.Ui
		case ory.LoginFlow:
			ui = &model.Ui
		case *ory.RegistrationFlow:
			ui = &model.Ui
		case ory.RegistrationFlow:
			ui = &model.Ui
		case *ory.SettingsFlow:
			ui = &model.Ui
		case ory.SettingsFlow:
			ui = &model.Ui
		case *ory.ErrorGeneric:
			return &Error{StatusCode: status, Message: model.Error.GetMessage()}
		case ory.ErrorGeneric:
			return &Error{StatusCode: status, Message: model.Error.GetMessage()}
		}
		if ui != nil {
			return &Error{StatusCode: status, Message: uiMessage(*ui)}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func uiMessage(ui ory.UiContainer) string {
	for _, msg := range ui.Messages {
		if strings.TrimSpace(msg.Text) != "" {
			return msg.Text
		}
	}
	for _, node := range ui.Nodes {
		for _, msg := range node.Messages {
			if strings.TrimSpace(msg.Text) != "" {
				return msg.Text
			}
		}
	}
	return ""
}

func traitString(traits interface{}, key string) string {
	m, ok := traits.(map[string]interface{})
	if !ok {
		return ""
	}
	value, _ := m[key].(string)
	return strings.TrimSpace(value)
}

func fullName(name interface{}) string {
	parts, ok := name.(map[string]interface{})
	if !ok {
		return ""
	}
	first, _ := parts["first"].(string)
	last, _ := parts["last"].(string)
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
