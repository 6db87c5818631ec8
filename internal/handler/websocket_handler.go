package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"

	"tender-admin/internal/middleware"
	"tender-admin/internal/observability"
	"tender-admin/internal/service"
	ws "tender-admin/internal/websocket"
)

// WebSocketHandler streams a client's session state changes. The first
// frame is the state at connect time.
type WebSocketHandler struct {
	hub         *ws.Hub
	authService *service.AuthService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates the handler. Connections are accepted from the
// request's own host and from allowedOrigins.
func NewWebSocketHandler(hub *ws.Hub, authService *service.AuthService, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	}
}

// HandleConnection handles WebSocket upgrade and connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	clientID, ok := middleware.GetClientID(r.Context())
	if !ok {
		http.Error(w, `{"error":"Missing client"}`, http.StatusBadRequest)
		return
	}

	st, err := h.authService.State(r.Context(), clientID)
	if err != nil {
		logger.Error("failed to resolve session state", slog.String("error", err.Error()))
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	initial, err := ws.EncodeState(st)
	if err != nil {
		logger.Error("failed to encode session state", slog.String("error", err.Error()))
		http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, clientID)
	client.Enqueue(initial)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
