// GoTrue implementation of [AuthAPI]
//
// Endpoint shapes follow the hosted provider's auth API: password grant,
// signup, logout, user lookup and refresh-token grant.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/munshid/nasheedbox/internal/models"
	"github.com/munshid/nasheedbox/internal/shared"
	"golang.org/x/oauth2"
)

// GoTrueClient implements [AuthAPI] against a GoTrue-compatible identity
// provider mounted under {baseURL}/auth/v1.
type GoTrueClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewGoTrueClient creates a client for the identity provider at baseURL.
func NewGoTrueClient(baseURL, anonKey string, client *http.Client) *GoTrueClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoTrueClient{
		baseURL:    baseURL,
		anonKey:    anonKey,
		httpClient: client,
	}
}

type authUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Identities []any  `json:"identities"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	User         *authUser `json:"user"`
}

type authError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e authError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown provider error"
}

// doRequest performs a JSON request against the auth API and decodes the response.
func (c *GoTrueClient) doRequest(ctx context.Context, method, endpoint, accessToken string, body, result any) error {
	apiURL := c.baseURL + "/auth/v1" + endpoint

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr authError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: %s", shared.ErrAuth, apiErr.text())
		}
		return fmt.Errorf("%w: status %d", shared.ErrTransport, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *GoTrueClient) session(tr tokenResponse) *Session {
	s := &Session{}
	if tr.User != nil {
		s.User = models.User{ID: tr.User.ID, Email: tr.User.Email}
	}
	if tr.AccessToken != "" {
		s.Token = &oauth2.Token{
			AccessToken:  tr.AccessToken,
			TokenType:    tr.TokenType,
			RefreshToken: tr.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
		}
	}
	return s
}

// SignIn exchanges email/password credentials for a session.
func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password required", shared.ErrAuth)
	}

	body := map[string]string{"email": email, "password": password}

	var tr tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tr); err != nil {
		return nil, err
	}

	if tr.AccessToken == "" || tr.User == nil {
		return nil, fmt.Errorf("%w: provider returned no session", shared.ErrAuth)
	}

	return c.session(tr), nil
}

// SignUp registers a new account. When the provider requires email
// confirmation the returned session has a nil token; an account that already
// exists surfaces as [shared.ErrAuth] (the provider signals this with an
// empty identities list).
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: password required", shared.ErrAuth)
	}

	body := map[string]string{"email": email, "password": password}

	// Signup with auto-confirm enabled returns a full token response; without
	// it the provider returns the bare user object at the top level.
	var sr struct {
		tokenResponse
		authUser
	}
	if err := c.doRequest(ctx, http.MethodPost, "/signup", "", body, &sr); err != nil {
		return nil, err
	}

	tr := sr.tokenResponse
	if tr.User == nil {
		tr.User = &sr.authUser
	}

	if tr.User.Identities != nil && len(tr.User.Identities) == 0 {
		return nil, fmt.Errorf("%w: an account already exists for this email", shared.ErrAuth)
	}
	if tr.User.ID == "" {
		return nil, fmt.Errorf("%w: signup failed", shared.ErrAuth)
	}

	return c.session(tr), nil
}

// SignOut revokes the session server-side.
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.doRequest(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// CurrentUser resolves the user the access token belongs to.
func (c *GoTrueClient) CurrentUser(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}

	var u authUser
	if err := c.doRequest(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: provider returned no user", shared.ErrAuth)
	}

	return &models.User{ID: u.ID, Email: u.Email}, nil
}

// Refresh exchanges a refresh token for a fresh session.
func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	body := map[string]string{"refresh_token": refreshToken}

	var tr tokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tr); err != nil {
		return nil, err
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: provider returned no session", shared.ErrRefreshFailed)
	}

	return c.session(tr), nil
}
