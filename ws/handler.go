package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// TokenValidator verifies the token of a connecting client. Defined here
// rather than importing services so ws stays a leaf of the wire-up.
type TokenValidator interface {
	Validate(tokenString string) (*models.Identity, error)
}

// upgrader turns the HTTP request into a websocket. Origins are checked
// by the CORS layer for the API; the token is what authenticates here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler accepts websocket connections.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
}

// NewHandler creates the websocket handler.
func NewHandler(hub *Hub, tokenValidator TokenValidator) *Handler {
	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
	}
}

// HandleConnection authenticates, upgrades and serves one connection.
// Browsers can not set headers on a websocket handshake, so the token
// comes in the query:
//
//	ws://server/ws?token=JWT_TOKEN
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	identity, err := h.tokenValidator.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for user %s: %v", identity.UserID, err)
		return
	}

	client := newClient(h.hub, conn, identity)

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	client.sendEvent(Event{Op: OpReady, Data: ReadyData{
		UserID:   identity.UserID,
		Username: identity.Username,
	}})

	go client.WritePump()
	go client.syncPump()
	client.ReadPump() // blocks until the connection closes
}
