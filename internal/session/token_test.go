package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-admin/internal/testutil"
)

func TestFabricate(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tok := Fabricate("alice", now)

	assert.Equal(t, TokenFabricated, tok.Kind)
	assert.Equal(t, "alice", tok.Username)
	assert.True(t, tok.IssuedAt.Equal(now))

	payload, err := base64.StdEncoding.DecodeString(tok.Raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"alice","timestamp":1709294400000}`, string(payload))
}

func TestTokenEncodeDecode(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("fabricated_round_trip", func(t *testing.T) {
		stored := Fabricate("bob", now).Encode()
		assert.Contains(t, stored, fabricatedPrefix)

		tok, err := DecodeToken(stored)
		require.NoError(t, err)
		assert.Equal(t, TokenFabricated, tok.Kind)
		assert.Equal(t, "bob", tok.Username)
		assert.True(t, tok.IssuedAt.Equal(now))
		assert.False(t, tok.Legacy)
	})

	t.Run("opaque_round_trip", func(t *testing.T) {
		stored := OpaqueToken("eyJhbGciOiJIUzI1NiJ9.payload.sig").Encode()

		tok, err := DecodeToken(stored)
		require.NoError(t, err)
		assert.Equal(t, TokenOpaque, tok.Kind)
		assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.payload.sig", tok.Raw)
		assert.False(t, tok.Legacy)
	})

	t.Run("opaque_tag_wins_over_payload_shape", func(t *testing.T) {
		raw := testutil.FabricatedTokenPayload("mallory", now)

		tok, err := DecodeToken(opaquePrefix + raw)
		require.NoError(t, err)
		assert.Equal(t, TokenOpaque, tok.Kind)
	})

	t.Run("tagged_fabricated_with_bad_payload", func(t *testing.T) {
		_, err := DecodeToken(fabricatedPrefix + "not-base64!!")
		assert.ErrorIs(t, err, ErrTokenPayload)
	})

	t.Run("tagged_fabricated_without_timestamp", func(t *testing.T) {
		raw := base64.StdEncoding.EncodeToString([]byte(`{"username":"alice"}`))
		_, err := DecodeToken(fabricatedPrefix + raw)
		assert.ErrorIs(t, err, ErrTokenPayload)
	})
}

func TestDecodeToken_Legacy(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name     string
		stored   string
		wantKind TokenKind
	}{
		{"base64_json_payload_is_fabricated", testutil.FabricatedTokenPayload("alice", now), TokenFabricated},
		{"jwt_is_opaque", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig", TokenOpaque},
		{"base64_non_json_is_opaque", base64.StdEncoding.EncodeToString([]byte("plain text token")), TokenOpaque},
		{"json_without_username_is_opaque", base64.StdEncoding.EncodeToString([]byte(`{"timestamp":1}`)), TokenOpaque},
		{"short_value_is_opaque", "abc", TokenOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := DecodeToken(tt.stored)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, tok.Kind)
			assert.True(t, tok.Legacy)
		})
	}
}

func TestTokenExpired(t *testing.T) {
	issued := time.UnixMilli(1_700_000_000_000)
	tok := Fabricate("alice", issued)

	assert.False(t, tok.Expired(issued.Add(MaxTokenAge-time.Millisecond), MaxTokenAge))
	assert.False(t, tok.Expired(issued.Add(MaxTokenAge), MaxTokenAge))
	assert.True(t, tok.Expired(issued.Add(MaxTokenAge+time.Millisecond), MaxTokenAge))

	opaque := OpaqueToken("long-opaque-backend-token")
	assert.False(t, opaque.Expired(issued.Add(100*MaxTokenAge), MaxTokenAge))
	assert.Equal(t, time.Duration(0), opaque.Age(issued))
}

func TestTokenKindString(t *testing.T) {
	assert.Equal(t, "fabricated", TokenFabricated.String())
	assert.Equal(t, "opaque", TokenOpaque.String())
}
