package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"tender-admin/internal/observability"
	"tender-admin/internal/session"
)

const MessageTypeSessionState = "session_state"

// BroadcastMessage is a payload for every connection of one client.
type BroadcastMessage struct {
	ClientID string
	Type     string
	Message  []byte
}

// Hub tracks live connections by client id. A browser with several tabs
// open has several connections under the same client.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.clientID] == nil {
				h.clients[client.clientID] = make(map[*Client]bool)
			}
			h.clients[client.clientID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("websocket client registered", slog.String("client_id", client.clientID))

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			for client := range h.clients[message.ClientID] {
				select {
				case client.send <- message.Message:
					observability.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
				default:
					// Slow reader; drop the connection rather than block the hub.
					h.remove(client)
				}
			}
		}
	}
}

// remove closes the client's send channel. Deleting from the map first
// guarantees each channel is closed once.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.clientID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Debug("websocket client unregistered", slog.String("client_id", client.clientID))

	if len(clients) == 0 {
		delete(h.clients, client.clientID)
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	for _, clients := range h.clients {
		for client := range clients {
			h.remove(client)
		}
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every connection of clientID. It never
// blocks: the message is dropped when the hub is stopped or its queue is
// full.
func (h *Hub) Broadcast(clientID, msgType string, message []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- &BroadcastMessage{ClientID: clientID, Type: msgType, Message: message}:
		return true
	case <-h.done:
		return false
	default:
		slog.Warn("websocket broadcast queue full, dropping message",
			slog.String("client_id", clientID),
			slog.String("type", msgType))
		return false
	}
}

// BroadcastState pushes a session state change to the client's connections.
func (h *Hub) BroadcastState(clientID string, st session.State) {
	data, err := EncodeState(st)
	if err != nil {
		slog.Error("failed to marshal session state",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		return
	}
	h.Broadcast(clientID, MessageTypeSessionState, data)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ServerMessage is the frame sent to browsers.
type ServerMessage struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func EncodeState(st session.State) ([]byte, error) {
	snap := st.Snapshot()
	return json.Marshal(ServerMessage{Type: MessageTypeSessionState, Session: &snap})
}
