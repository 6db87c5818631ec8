package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../artifacts/openapi.yaml"

func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(specPath)
	require.NoError(t, err, "failed to load OpenAPI spec")
	require.NoError(t, doc.Validate(loader.Context), "OpenAPI spec validation failed")
	return doc
}

func TestOpenAPISpecIsValid(t *testing.T) {
	doc := loadSpec(t)

	assert.Equal(t, "Tender Admin Session API", doc.Info.Title)
	assert.Equal(t, "1.0.0", doc.Info.Version)
}

func TestAllAPIRoutesAreDocumented(t *testing.T) {
	doc := loadSpec(t)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/session"},
		{"POST", "/api/v1/session/login"},
		{"POST", "/api/v1/session/logout"},
		{"GET", "/health"},
		{"GET", "/health/ready"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			item := doc.Paths.Find(route.path)
			require.NotNil(t, item)
			assert.NotNil(t, item.GetOperation(route.method))
		})
	}
}

func TestOpenAPIClientCookieScheme(t *testing.T) {
	doc := loadSpec(t)

	scheme := doc.Components.SecuritySchemes["clientCookie"]
	require.NotNil(t, scheme)
	assert.Equal(t, "apiKey", scheme.Value.Type)
	assert.Equal(t, "cookie", scheme.Value.In)
	assert.Equal(t, ClientCookieName, scheme.Value.Name)
}

func TestOpenAPILoginResponses(t *testing.T) {
	doc := loadSpec(t)

	op := doc.Paths.Find("/api/v1/session/login").GetOperation("POST")
	require.NotNil(t, op)
	for _, status := range []int{200, 401, 409} {
		assert.NotNil(t, op.Responses.Status(status), "login should document %d", status)
	}
}

func newValidatedHandler(t *testing.T) http.Handler {
	t.Helper()
	mw := OpenAPIValidator(&OpenAPIValidatorConfig{
		Enabled:  true,
		SpecPath: specPath,
		Prefix:   "/api/",
	})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestOpenAPIValidator_Requests(t *testing.T) {
	handler := newValidatedHandler(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		csrf   bool
		status int
	}{
		{"valid_login", http.MethodPost, "/api/v1/session/login", `{"username":"alice","password":"pw"}`, true, http.StatusOK},
		{"empty_username_reaches_handler", http.MethodPost, "/api/v1/session/login", `{"username":"","password":""}`, true, http.StatusOK},
		{"missing_password", http.MethodPost, "/api/v1/session/login", `{"username":"alice"}`, true, http.StatusBadRequest},
		{"username_not_string", http.MethodPost, "/api/v1/session/login", `{"username":1,"password":"pw"}`, true, http.StatusBadRequest},
		{"missing_csrf_header", http.MethodPost, "/api/v1/session/logout", "", false, http.StatusBadRequest},
		{"undocumented_api_path", http.MethodGet, "/api/v1/unknown", "", false, http.StatusBadRequest},
		{"html_routes_skipped", http.MethodPost, "/login", "username=alice", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" && strings.HasPrefix(tt.body, "{") {
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.csrf {
				req.Header.Set("X-CSRF-Token", "token")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestOpenAPIValidator_MissingSpecIsNoop(t *testing.T) {
	mw := OpenAPIValidator(&OpenAPIValidatorConfig{Enabled: true, SpecPath: "/nonexistent/spec.yaml", Prefix: "/api/"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/anything", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestOpenAPIValidator_Disabled(t *testing.T) {
	mw := OpenAPIValidator(&OpenAPIValidatorConfig{Enabled: false})
	assert.NotNil(t, mw)
}

func TestDefaultOpenAPIValidatorConfig(t *testing.T) {
	config := DefaultOpenAPIValidatorConfig()

	assert.Equal(t, "artifacts/openapi.yaml", config.SpecPath)
	assert.Equal(t, "/api/", config.Prefix)
	assert.False(t, config.ValidateResponses)
}
