package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tender-admin/internal/domain"
	"tender-admin/internal/middleware"
	"tender-admin/internal/observability"
	"tender-admin/internal/service"
	"tender-admin/internal/session"
)

const msgLoginInProgress = "A sign-in is already in progress. Please wait."

// AuthHandler serves the login form, logout and the JSON session API.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from,omitempty"`
}

type SessionResponse struct {
	session.Snapshot
	CSRFToken string `json:"csrf_token"`
}

type LoginResponse struct {
	RedirectTo string          `json:"redirect_to"`
	Session    SessionResponse `json:"session"`
}

type LogoutResponse struct {
	RedirectTo string `json:"redirect_to"`
}

type loginPage struct {
	LoginPath string
	CSRFToken string
	From      string
	Username  string
	Error     string
}

// LoginPage renders the credential form. A client that already has a valid
// session goes straight to its destination.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.clientSession(w, r)
	if !ok {
		return
	}

	from := r.URL.Query().Get("from")
	if decision := cs.Guard.Evaluate(r.Context()); decision.Outcome == session.OutcomeRender {
		dest := domain.NewDestination(from, h.authService.LoginPath(), h.authService.LandingPath())
		http.Redirect(w, r, dest.Path, http.StatusSeeOther)
		return
	}

	render(w, http.StatusOK, "login.html", loginPage{
		LoginPath: h.authService.LoginPath(),
		CSRFToken: cs.CSRFToken,
		From:      from,
	})
}

// LoginSubmit handles the form post. Failures re-render the form with the
// message inline and the username kept.
func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.clientSession(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	creds := domain.Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	from := r.PostForm.Get("from")

	dest, _, err := h.authService.Login(r.Context(), cs.ID, creds, from)
	if err == nil {
		http.Redirect(w, r, dest.Path, http.StatusSeeOther)
		return
	}

	page := loginPage{
		LoginPath: h.authService.LoginPath(),
		CSRFToken: cs.CSRFToken,
		From:      from,
		Username:  creds.Username,
	}
	status, message := loginFailure(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("login failed unexpectedly",
			slog.String("error", err.Error()))
	}
	page.Error = message
	render(w, status, "login.html", page)
}

// Logout always succeeds and lands on the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.GetClientID(r.Context())
	dest := h.authService.Logout(r.Context(), clientID)
	http.Redirect(w, r, dest.Path, http.StatusSeeOther)
}

// Session returns the client's session snapshot and CSRF token.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.clientSession(w, r)
	if !ok {
		return
	}
	st := cs.Guard.Evaluate(r.Context()).State
	writeJSON(w, http.StatusOK, SessionResponse{Snapshot: st.Snapshot(), CSRFToken: cs.CSRFToken})
}

func (h *AuthHandler) LoginJSON(w http.ResponseWriter, r *http.Request) {
	cs, ok := h.clientSession(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dest, st, err := h.authService.Login(r.Context(), cs.ID,
		domain.Credentials{Username: req.Username, Password: req.Password}, req.From)
	if err != nil {
		status, message := loginFailure(err)
		if status == http.StatusInternalServerError {
			observability.FromContext(r.Context()).Error("login failed unexpectedly",
				slog.String("error", err.Error()))
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		RedirectTo: dest.Path,
		Session:    SessionResponse{Snapshot: st.Snapshot(), CSRFToken: cs.CSRFToken},
	})
}

func (h *AuthHandler) LogoutJSON(w http.ResponseWriter, r *http.Request) {
	clientID, _ := middleware.GetClientID(r.Context())
	dest := h.authService.Logout(r.Context(), clientID)
	writeJSON(w, http.StatusOK, LogoutResponse{RedirectTo: dest.Path})
}

func (h *AuthHandler) clientSession(w http.ResponseWriter, r *http.Request) (*service.ClientSession, bool) {
	clientID, ok := middleware.GetClientID(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "Missing client")
		return nil, false
	}
	cs, err := h.authService.Session(clientID)
	if err != nil {
		observability.FromContext(r.Context()).Error("failed to load client session",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return cs, true
}

// loginFailure maps a login error to a status and the message shown to the
// user.
func loginFailure(err error) (int, string) {
	var authErr *domain.AuthError
	switch {
	case errors.Is(err, domain.ErrLoginInProgress):
		return http.StatusConflict, msgLoginInProgress
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, authErr.Message
	default:
		return http.StatusInternalServerError, domain.DefaultLoginFailureMessage
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
