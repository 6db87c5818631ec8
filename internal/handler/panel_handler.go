package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tender-admin/internal/config"
	"tender-admin/internal/domain"
	"tender-admin/internal/middleware"
	"tender-admin/internal/service"
)

// Section is one protected admin screen.
type Section struct {
	Slug        string
	Title       string
	Description string
}

// Sections lists the admin screens in navigation order. The first one is the
// default for /panel.
var Sections = []Section{
	{Slug: "tenders", Title: "Tenders", Description: "Published and draft tenders."},
	{Slug: "subscribers", Title: "Subscribers", Description: "Accounts receiving tender alerts."},
	{Slug: "categories", Title: "Categories", Description: "Tender classification."},
	{Slug: "emails", Title: "Emails", Description: "Outgoing notification log."},
}

func findSection(slug string) (Section, bool) {
	for _, s := range Sections {
		if s.Slug == slug {
			return s, true
		}
	}
	return Section{}, false
}

// ServesPath reports whether path is a panel route for a known section.
func ServesPath(path string) bool {
	if path == config.PanelPath {
		return true
	}
	slug, ok := strings.CutPrefix(path, config.PanelPath+"/")
	if !ok {
		return false
	}
	_, ok = findSection(slug)
	return ok
}

type panelPage struct {
	Section     Section
	Sections    []Section
	DisplayName string
	CSRFToken   string
	LoginURL    string
}

// PanelHandler renders the guarded admin screens. It must sit behind the
// Guard middleware, which puts the validated state in the request context.
type PanelHandler struct {
	authService *service.AuthService
}

func NewPanelHandler(authService *service.AuthService) *PanelHandler {
	return &PanelHandler{authService: authService}
}

// Root sends the browser to the landing path.
func (h *PanelHandler) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.authService.LandingPath(), http.StatusSeeOther)
}

func (h *PanelHandler) Panel(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "section")
	if slug == "" {
		slug = Sections[0].Slug
	}
	section, ok := findSection(slug)
	if !ok {
		http.NotFound(w, r)
		return
	}

	st, ok := middleware.GetState(r.Context())
	if !ok || st.User == nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	clientID, _ := middleware.GetClientID(r.Context())
	cs, err := h.authService.Session(clientID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render(w, http.StatusOK, "panel.html", panelPage{
		Section:     section,
		Sections:    Sections,
		DisplayName: st.User.DisplayName(),
		CSRFToken:   cs.CSRFToken,
		LoginURL:    domain.Destination{Path: r.URL.RequestURI()}.LoginURL(h.authService.LoginPath()),
	})
}
