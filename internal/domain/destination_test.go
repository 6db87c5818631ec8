package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDestination(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "/panel"},
		{"local_path", "/panel/tenders", "/panel/tenders"},
		{"keeps_query", "/panel/tenders?page=2", "/panel/tenders?page=2"},
		{"relative", "panel", "/panel"},
		{"protocol_relative", "//evil.example.com/x", "/panel"},
		{"backslash_trick", "/\\evil.example.com", "/panel"},
		{"absolute_url", "https://evil.example.com/", "/panel"},
		{"login_loop", "/login", "/panel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDestination(tt.raw, "/login", "/panel")
			assert.Equal(t, tt.want, got.Path)
		})
	}
}

func TestDestination_LoginURL(t *testing.T) {
	d := Destination{Path: "/panel?tab=open"}
	assert.Equal(t, "/login?from=%2Fpanel%3Ftab%3Dopen", d.LoginURL("/login"))
	assert.Equal(t, "/login", Destination{}.LoginURL("/login"))
}
