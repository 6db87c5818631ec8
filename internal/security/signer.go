package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidSignature = errors.New("invalid cookie signature")

// Signer authenticates cookie values with HMAC-SHA256 so a browser cannot
// pick another client's id.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign returns value followed by "." and its signature.
func (s *Signer) Sign(value string) string {
	return value + "." + s.mac(value)
}

// Verify returns the value carried by signed, or ErrInvalidSignature.
func (s *Signer) Verify(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", ErrInvalidSignature
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(value))) {
		return "", ErrInvalidSignature
	}
	return value, nil
}

func (s *Signer) mac(value string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
