package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"tender-admin/internal/domain"
	"tender-admin/internal/observability"
	"tender-admin/internal/service"
	"tender-admin/internal/session"
)

// SessionProvider looks up the in-memory session of a client.
type SessionProvider interface {
	Session(clientID string) (*service.ClientSession, error)
}

const loadingPage = `<!doctype html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading&hellip;</p></body></html>`

// Guard protects the wrapped routes with the client's route guard. Rendering
// proceeds only with a valid session; a client whose login is in flight gets
// 503 with Retry-After, and everyone else is sent to the login page with the
// requested path preserved.
func Guard(sessions SessionProvider, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, ok := GetClientID(r.Context())
			if !ok {
				redirectToLogin(w, r, loginPath)
				return
			}

			cs, err := sessions.Session(clientID)
			if err != nil {
				observability.FromContext(r.Context()).Error("failed to load client session",
					slog.String("error", err.Error()))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			decision := cs.Guard.Evaluate(r.Context())
			switch decision.Outcome {
			case session.OutcomeRender:
				ctx := WithState(r.Context(), decision.State)
				ctx = observability.WithUsername(ctx, decision.State.User.Username)
				next.ServeHTTP(w, r.WithContext(ctx))
			case session.OutcomeLoading:
				writeLoading(w, r)
			default:
				observability.FromContext(r.Context()).Debug("guard redirect",
					slog.String("reason", string(decision.Reason)),
					slog.String("path", r.URL.Path))
				redirectToLogin(w, r, loginPath)
			}
		})
	}
}

func writeLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Cache-Control", "no-store")
	if WantsJSON(r) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(loadingPage))
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	loginURL := domain.Destination{Path: r.URL.RequestURI()}.LoginURL(loginPath)
	w.Header().Set("Cache-Control", "no-store")
	if WantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":     "Not authenticated",
			"login_url": loginURL,
		})
		return
	}
	http.Redirect(w, r, loginURL, http.StatusSeeOther)
}

// WantsJSON reports whether the caller is an API client rather than a page
// navigation.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// GetState returns the session state the guard rendered with.
func GetState(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(StateKey).(session.State)
	return st, ok
}

func WithState(ctx context.Context, st session.State) context.Context {
	return context.WithValue(ctx, StateKey, st)
}
