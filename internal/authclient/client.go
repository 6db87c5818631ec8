// Package authclient talks to the tender backend's authentication endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tender-admin/internal/domain"
)

const (
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
	HealthPath = "/health"

	RequestIDHeader     = "X-Request-ID"
	AuthorizationHeader = "Authorization"

	maxResponseBytes = 1 << 20
)

var (
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	ErrInvalidResponse    = errors.New("invalid response from auth backend")
)

// tokenFields are the names a backend may use for the issued token, in order
// of preference.
var tokenFields = []string{"token", "accessToken", "access_token"}

// Client performs the credential exchange against the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client. If httpClient is nil a client with the
// given timeout is used.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Login exchanges credentials for a user record and, when the backend issues
// one, a token. Every failure is returned as a *domain.AuthError carrying a
// display message.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, domain.NewAuthError("", fmt.Errorf("failed to encode credentials: %w", err))
	}

	req, err := c.newRequest(ctx, http.MethodPost, LoginPath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAuthError("", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewAuthError("", errors.Join(ErrBackendUnavailable, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewAuthError("", fmt.Errorf("failed to read response: %w", err))
	}

	return parseLoginResponse(resp.StatusCode, raw)
}

// Logout notifies the backend that the token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, LogoutPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set(AuthorizationHeader, "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

// Ping checks that the backend answers. Any non-5xx status counts as up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, HealthPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(RequestIDHeader, reqID)
	}
	return req, nil
}

// loginEnvelope is the backend's response wrapper. Token fields are read
// separately because their name varies between deployments.
type loginEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func parseLoginResponse(status int, raw []byte) (*domain.LoginResult, error) {
	var env loginEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("auth backend returned a non-JSON body",
			slog.Int("status", status),
			slog.Int("length", len(raw)))
		return nil, domain.NewAuthError("", errors.Join(ErrInvalidResponse, err))
	}

	message := env.Message
	if message == "" {
		message = env.Error
	}

	if !env.Success || status >= http.StatusBadRequest {
		return nil, domain.NewAuthError(message, fmt.Errorf("login rejected with status %d", status))
	}

	var user domain.User
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &user) != nil || strings.TrimSpace(user.Username) == "" {
		return nil, domain.NewAuthError(message, fmt.Errorf("%w: no user record", ErrInvalidResponse))
	}

	var top map[string]json.RawMessage
	_ = json.Unmarshal(raw, &top)

	token := findToken(top)
	if token == "" {
		token = findToken(user.Attributes)
	}
	for _, field := range tokenFields {
		delete(user.Attributes, field)
	}

	return &domain.LoginResult{User: &user, Token: token, Message: env.Message}, nil
}

func findToken(fields map[string]json.RawMessage) string {
	for _, name := range tokenFields {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
