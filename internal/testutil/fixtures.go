package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"tender-admin/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID         string
	Username   string
	Attributes map[string]any
}

// NewTestUser creates a test user with sensible defaults
// Pass options to override specific fields
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	n := nextID()
	o := &UserOptions{
		ID:       fmt.Sprintf("%d", n),
		Username: fmt.Sprintf("admin%d", n),
	}

	for _, opt := range opts {
		opt(o)
	}

	user := &domain.User{
		ID:       domain.UserID(o.ID),
		Username: o.Username,
	}
	if len(o.Attributes) > 0 {
		user.Attributes = make(map[string]json.RawMessage, len(o.Attributes))
		for k, v := range o.Attributes {
			raw, _ := json.Marshal(v)
			user.Attributes[k] = raw
		}
	}
	return user
}

func WithUserID(id string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.ID = id
	}
}

func WithUsername(username string) func(*UserOptions) {
	return func(o *UserOptions) {
		o.Username = username
	}
}

func WithAttribute(name string, value any) func(*UserOptions) {
	return func(o *UserOptions) {
		if o.Attributes == nil {
			o.Attributes = make(map[string]any)
		}
		o.Attributes[name] = value
	}
}

// UserJSON returns the persisted form of a user record.
func UserJSON(user *domain.User) string {
	data, err := json.Marshal(user)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// FabricatedTokenPayload returns the untagged base64 payload of a locally
// fabricated token issued at the given instant.
func FabricatedTokenPayload(username string, issuedAt time.Time) string {
	payload, _ := json.Marshal(map[string]any{
		"username":  username,
		"timestamp": issuedAt.UnixMilli(),
	})
	return base64.StdEncoding.EncodeToString(payload)
}

// NewTestCredentials returns credentials for the given user.
func NewTestCredentials(username string) domain.Credentials {
	return domain.Credentials{Username: username, Password: "correct-horse-battery"}
}

// NewTestLoginResult builds a successful exchange result. An empty token
// means the backend issued none.
func NewTestLoginResult(user *domain.User, token string) *domain.LoginResult {
	return &domain.LoginResult{User: user, Token: token, Message: "Login successful"}
}

// NewTestSessionEvent builds a session event with defaults.
func NewTestSessionEvent(typ domain.SessionEventType, clientID string) *domain.SessionEvent {
	return &domain.SessionEvent{
		Type:       typ,
		ClientID:   clientID,
		Username:   "alice",
		InstanceID: "instance-test",
		OccurredAt: time.Now().UTC(),
	}
}

// ResetIDCounter resets the ID counter (useful for deterministic tests)
func ResetIDCounter() {
	idCounter.Store(0)
}
