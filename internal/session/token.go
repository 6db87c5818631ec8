package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// MaxTokenAge is how long a fabricated token stays fresh.
const MaxTokenAge = 7 * 24 * time.Hour

// Opaque backend tokens must be longer than this to be accepted.
const minOpaqueTokenLength = 10

const (
	fabricatedPrefix = "fabricated:"
	opaquePrefix     = "opaque:"
)

var ErrTokenPayload = errors.New("token payload is not a fabricated token")

// TokenKind tells a backend-issued token from one synthesised locally.
type TokenKind int

const (
	TokenOpaque TokenKind = iota
	TokenFabricated
)

func (k TokenKind) String() string {
	if k == TokenFabricated {
		return "fabricated"
	}
	return "opaque"
}

// Token is the credential proving a session. For fabricated tokens Username
// and IssuedAt are decoded from the payload; for opaque tokens only Raw is set.
type Token struct {
	Kind     TokenKind
	Raw      string
	Username string
	IssuedAt time.Time

	// Legacy is set when the token was read from storage without a kind tag.
	Legacy bool
}

type fabricatedPayload struct {
	Username  string `json:"username"`
	Timestamp *int64 `json:"timestamp"`
}

// Fabricate builds a token for a backend that issued none: the base64 of
// {"username": ..., "timestamp": <unix millis>}.
func Fabricate(username string, now time.Time) Token {
	ts := now.UnixMilli()
	payload, _ := json.Marshal(fabricatedPayload{Username: username, Timestamp: &ts})
	return Token{
		Kind:     TokenFabricated,
		Raw:      base64.StdEncoding.EncodeToString(payload),
		Username: username,
		IssuedAt: time.UnixMilli(ts),
	}
}

// OpaqueToken wraps a token issued by the backend.
func OpaqueToken(raw string) Token {
	return Token{Kind: TokenOpaque, Raw: raw}
}

// Encode returns the persisted form, which carries the kind as a prefix.
func (t Token) Encode() string {
	if t.Kind == TokenFabricated {
		return fabricatedPrefix + t.Raw
	}
	return opaquePrefix + t.Raw
}

// Age returns how old a fabricated token is at now. Opaque tokens have no age.
func (t Token) Age(now time.Time) time.Duration {
	if t.Kind != TokenFabricated {
		return 0
	}
	return now.Sub(t.IssuedAt)
}

// Expired reports whether a fabricated token is older than maxAge.
func (t Token) Expired(now time.Time, maxAge time.Duration) bool {
	return t.Kind == TokenFabricated && t.Age(now) > maxAge
}

// DecodeToken reads a persisted token. Tagged values are decoded by their
// kind; a fabricated tag with a bad payload is an error. Untagged values are
// classified by trying the fabricated payload first and falling back to
// opaque.
func DecodeToken(stored string) (Token, error) {
	switch {
	case strings.HasPrefix(stored, fabricatedPrefix):
		raw := strings.TrimPrefix(stored, fabricatedPrefix)
		return decodeFabricated(raw)

	case strings.HasPrefix(stored, opaquePrefix):
		return OpaqueToken(strings.TrimPrefix(stored, opaquePrefix)), nil
	}

	tok, err := decodeFabricated(stored)
	if err != nil {
		tok = OpaqueToken(stored)
	}
	tok.Legacy = true
	return tok, nil
}

func decodeFabricated(raw string) (Token, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Token{}, errors.Join(ErrTokenPayload, err)
	}

	var p fabricatedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Token{}, errors.Join(ErrTokenPayload, err)
	}
	if p.Username == "" || p.Timestamp == nil {
		return Token{}, ErrTokenPayload
	}

	return Token{
		Kind:     TokenFabricated,
		Raw:      raw,
		Username: p.Username,
		IssuedAt: time.UnixMilli(*p.Timestamp),
	}, nil
}
