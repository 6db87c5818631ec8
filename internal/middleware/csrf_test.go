package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"tender-admin/internal/security"
	"tender-admin/internal/testutil"
)

type stubVerifier struct {
	tokens map[string]string
	calls  int
}

func (v *stubVerifier) VerifyCSRF(clientID, submitted string) error {
	v.calls++
	return security.NewTokenManager().Verify(v.tokens[clientID], submitted)
}

func newCSRFHandler(v *stubVerifier) http.Handler {
	return CSRF(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRF_SkipsSafeMethods(t *testing.T) {
	v := &stubVerifier{}
	handler := newCSRFHandler(v)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/login", nil))
			testutil.AssertStatusCode(t, w, http.StatusOK)
		})
	}
	testutil.AssertEqual(t, v.calls, 0)
}

func TestCSRF_ExemptPaths(t *testing.T) {
	handler := newCSRFHandler(&stubVerifier{})

	for _, path := range []string{"/health", "/metrics", "/ws/session"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
			testutil.AssertStatusCode(t, w, http.StatusOK)
		})
	}
}

func TestCSRF_RejectsWithoutClient(t *testing.T) {
	handler := newCSRFHandler(&stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("X-CSRF-Token", "anything")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusForbidden)
}

func TestCSRF_Tokens(t *testing.T) {
	v := &stubVerifier{tokens: map[string]string{"client-a": "expected-token"}}
	handler := newCSRFHandler(v)

	tests := []struct {
		name   string
		build  func() *http.Request
		status int
	}{
		{
			name: "form_field",
			build: func() *http.Request {
				return testutil.NewFormRequest(t, "/login", url.Values{"csrf_token": {"expected-token"}})
			},
			status: http.StatusOK,
		},
		{
			name: "header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
				req.Header.Set("X-CSRF-Token", "expected-token")
				return req
			},
			status: http.StatusOK,
		},
		{
			name: "alternate_header",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/session/logout", nil)
				req.Header.Set("X-XSRF-Token", "expected-token")
				return req
			},
			status: http.StatusOK,
		},
		{
			name: "missing",
			build: func() *http.Request {
				return testutil.NewFormRequest(t, "/login", url.Values{"username": {"alice"}})
			},
			status: http.StatusForbidden,
		},
		{
			name: "wrong",
			build: func() *http.Request {
				return testutil.NewFormRequest(t, "/logout", url.Values{"csrf_token": {"guessed"}})
			},
			status: http.StatusForbidden,
		},
		{
			name: "json_body_is_not_read",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/session/login",
					strings.NewReader(`{"csrf_token":"expected-token"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.build()
			req = req.WithContext(WithClientID(req.Context(), "client-a"))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			testutil.AssertStatusCode(t, w, tt.status)
		})
	}
}

func TestCSRF_TokenIsPerClient(t *testing.T) {
	v := &stubVerifier{tokens: map[string]string{"client-a": "token-a", "client-b": "token-b"}}
	handler := newCSRFHandler(v)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("X-CSRF-Token", "token-a")
	req = req.WithContext(WithClientID(req.Context(), "client-b"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w, http.StatusForbidden)
}
