package domain

import (
	"context"
	"errors"
	"time"
)

var ErrLoginInProgress = errors.New("login already in progress")

const DefaultLoginFailureMessage = "Login failed. Please try again."

// Credentials is what the login form submits.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is a successful credential exchange. Token is empty when the
// backend did not issue one.
type LoginResult struct {
	User    *User
	Token   string
	Message string
}

// AuthError is the single failure shape of a credential exchange. Transport
// failures and rejected credentials both arrive as an AuthError; callers show
// Message and do not branch on the cause.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError, using the generic message when the
// server supplied none.
func NewAuthError(message string, cause error) *AuthError {
	if message == "" {
		message = DefaultLoginFailureMessage
	}
	return &AuthError{Message: message, Err: cause}
}

// KeyValueStore is the durable persistence behind the session store. SetMany
// must apply all entries or none.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, entries map[string]string) error
	Remove(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// SessionEventType names a session lifecycle transition.
type SessionEventType string

const (
	EventLoginSucceeded SessionEventType = "login_succeeded"
	EventLoginFailed    SessionEventType = "login_failed"
	EventLoggedOut      SessionEventType = "logged_out"
	EventInvalidated    SessionEventType = "invalidated"
	EventRehydrated     SessionEventType = "rehydrated"
)

// SessionEvent is published on every session lifecycle transition.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	ClientID   string           `json:"client_id"`
	Username   string           `json:"username,omitempty"`
	InstanceID string           `json:"instance_id,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EndsSession reports whether the event leaves the client without a session.
func (e *SessionEvent) EndsSession() bool {
	return e.Type == EventLoggedOut || e.Type == EventInvalidated
}
