package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"tender-admin/internal/observability"
	"tender-admin/internal/security"
)

type contextKey string

const (
	ClientIDKey contextKey = "client_id"
	StateKey    contextKey = "session_state"
)

const (
	ClientCookieName   = "admin_client"
	clientCookieMaxAge = 365 * 24 * time.Hour
)

// Client identifies the browser. A request without a valid signed
// admin_client cookie is given a new client id and the cookie is set on the
// response.
func Client(signer *security.Signer, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, ok := readClientID(r, signer)
			if !ok {
				clientID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookieName,
					Value:    signer.Sign(clientID),
					Path:     "/",
					MaxAge:   int(clientCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithClientID(r.Context(), clientID)
			ctx = observability.WithClientID(ctx, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func readClientID(r *http.Request, signer *security.Signer) (string, bool) {
	cookie, err := r.Cookie(ClientCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	value, err := signer.Verify(cookie.Value)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", false
	}
	return value, true
}

func GetClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(ClientIDKey).(string)
	return clientID, ok && clientID != ""
}

func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, ClientIDKey, clientID)
}
