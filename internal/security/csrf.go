package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager issues the per-client CSRF tokens. Tokens live in the client
// registry next to the session machine and are compared on every
// state-changing request.
type TokenManager struct{}

func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns 32 random bytes as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(randomBytes), nil
}

// Verify compares a submitted token with the expected one in constant time.
func (tm *TokenManager) Verify(expected, submitted string) error {
	if expected == "" || submitted == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(expected), []byte(submitted)) {
		return ErrInvalidToken
	}
	return nil
}
