package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-admin/internal/observability"
	"tender-admin/internal/security"
	"tender-admin/internal/testutil"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func captureClientID(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = GetClientID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestClient_IssuesCookieForNewBrowser(t *testing.T) {
	signer := security.NewSigner(testSecret)
	var got string
	handler := Client(signer, true)(captureClientID(&got))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panel", nil))

	cookie := testutil.AssertCookie(t, w, ClientCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	value, err := signer.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, got, value)
	_, err = uuid.Parse(got)
	assert.NoError(t, err)
}

func TestClient_ReusesValidCookie(t *testing.T) {
	signer := security.NewSigner(testSecret)
	clientID := uuid.NewString()
	var got string
	handler := Client(signer, false)(captureClientID(&got))

	req := testutil.NewRequestWithCookie(t, http.MethodGet, "/panel", ClientCookieName, signer.Sign(clientID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, clientID, got)
	assert.Empty(t, w.Result().Cookies(), "no new cookie for a known client")
}

func TestClient_ReplacesInvalidCookie(t *testing.T) {
	signer := security.NewSigner(testSecret)
	forged := security.NewSigner("another-secret-another-secret-another").Sign(uuid.NewString())

	tests := []struct {
		name  string
		value string
	}{
		{"unsigned", uuid.NewString()},
		{"forged", forged},
		{"not_a_uuid", signer.Sign("client-a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Client(signer, false)(captureClientID(&got))

			req := testutil.NewRequestWithCookie(t, http.MethodGet, "/", ClientCookieName, tt.value)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			cookie := testutil.AssertCookie(t, w, ClientCookieName)
			require.NotNil(t, cookie)
			assert.NotEqual(t, tt.value, cookie.Value)
			assert.NotEmpty(t, got)
		})
	}
}

func TestClient_EnrichesLoggerContext(t *testing.T) {
	signer := security.NewSigner(testSecret)
	var ctx context.Context
	handler := Client(signer, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, ctx)
	assert.NotNil(t, observability.FromContext(ctx))
}

func TestGetClientID(t *testing.T) {
	_, ok := GetClientID(context.Background())
	assert.False(t, ok)

	_, ok = GetClientID(WithClientID(context.Background(), ""))
	assert.False(t, ok, "empty id counts as absent")

	id, ok := GetClientID(WithClientID(context.Background(), "client-a"))
	assert.True(t, ok)
	assert.Equal(t, "client-a", id)
}
