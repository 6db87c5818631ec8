package session

import (
	"context"
	"encoding/json"
	"fmt"

	"tender-admin/internal/domain"
)

const (
	TokenKey = "token"
	UserKey  = "user"
)

// Store persists one client's session: exactly the token and the serialized
// user record, under the client's key namespace. Both keys are always written
// and removed together.
type Store struct {
	kv        domain.KeyValueStore
	namespace string
}

// NewStore scopes kv to a client. An empty namespace uses the bare keys.
func NewStore(kv domain.KeyValueStore, namespace string) *Store {
	return &Store{kv: kv, namespace: namespace}
}

// ClientNamespace is the key prefix used for a browser client.
func ClientNamespace(clientID string) string {
	return "client:" + clientID + ":"
}

func (s *Store) key(name string) string {
	return s.namespace + name
}

// Load returns the raw persisted token and user strings. found is false when
// either one is absent.
func (s *Store) Load(ctx context.Context) (token, user string, found bool, err error) {
	token, tokenOK, err := s.kv.Get(ctx, s.key(TokenKey))
	if err != nil {
		return "", "", false, fmt.Errorf("failed to read token: %w", err)
	}
	user, userOK, err := s.kv.Get(ctx, s.key(UserKey))
	if err != nil {
		return "", "", false, fmt.Errorf("failed to read user: %w", err)
	}
	return token, user, tokenOK && userOK && token != "" && user != "", nil
}

// Save writes the token and user record in a single atomic write.
func (s *Store) Save(ctx context.Context, tok Token, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	if err := s.kv.SetMany(ctx, map[string]string{
		s.key(TokenKey): tok.Encode(),
		s.key(UserKey):  string(data),
	}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes both keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, s.key(TokenKey), s.key(UserKey)); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
