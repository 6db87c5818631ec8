package domain

import (
	"net/url"
	"strings"
)

// Destination is where the login flow sends the user once it succeeds. It is
// passed explicitly through the login request and response instead of being
// stashed in router state.
type Destination struct {
	Path string
}

// NewDestination accepts raw only if it is a local absolute path other than
// the login path itself; anything else resolves to fallback.
func NewDestination(raw, loginPath, fallback string) Destination {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return Destination{Path: fallback}
	}

	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return Destination{Path: fallback}
	}
	if u.Path == loginPath {
		return Destination{Path: fallback}
	}

	return Destination{Path: u.RequestURI()}
}

// LoginURL returns the login page URL carrying this destination.
func (d Destination) LoginURL(loginPath string) string {
	if d.Path == "" {
		return loginPath
	}
	return loginPath + "?from=" + url.QueryEscape(d.Path)
}

func (d Destination) String() string {
	return d.Path
}
