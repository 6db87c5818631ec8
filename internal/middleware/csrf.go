package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// CSRFVerifier checks a submitted CSRF token for a client.
type CSRFVerifier interface {
	VerifyCSRF(clientID, submitted string) error
}

// CSRF validates the synchronizer token on state-changing requests. The
// token is issued per client and read from the csrf_token form field or the
// X-CSRF-Token / X-XSRF-Token headers. Client must run first.
func CSRF(verifier CSRFVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			clientID, ok := GetClientID(r.Context())
			if !ok {
				logCSRFFailure(r, "no client")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			submitted := extractCSRFToken(r)
			if submitted == "" {
				logCSRFFailure(r, "missing token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			if err := verifier.VerifyCSRF(clientID, submitted); err != nil {
				logCSRFFailure(r, "invalid token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	for _, exempt := range []string{"/health", "/metrics", "/ws/"} {
		if strings.HasPrefix(path, exempt) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-XSRF-Token"); token != "" {
		return token
	}
	// JSON bodies are left for the handler; only forms carry the field.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return r.FormValue("csrf_token")
	}
	return ""
}

func logCSRFFailure(r *http.Request, reason string) {
	clientID, _ := GetClientID(r.Context())
	slog.Warn("CSRF validation failed",
		slog.String("client_id", clientID),
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
