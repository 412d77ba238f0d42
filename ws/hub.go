package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// MicSubscriber is the part of the mic bus the hub needs. Each call
// returns an idempotent dispose function.
type MicSubscriber interface {
	SubscribeSelf(roomID, userID string, fn func(models.MicEvent)) (dispose func())
	SubscribeRoom(roomID string, fn func(models.MicEvent)) (dispose func())
}

// QueueReader loads a room's mic queue for mic_queue_sync.
type QueueReader interface {
	Queue(ctx context.Context, roomID string) (*models.MicQueue, error)
}

// Hub tracks every connection.
//
// register and unregister are only handled by Run, so the clients map is
// only written there; readers take mu.
type Hub struct {
	// userID → connections; a user can have several tabs open
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	seq atomic.Int64

	mic    MicSubscriber
	queues QueueReader

	// called in its own goroutine when a user's last connection goes away
	onUserFullyDisconnected func(userID string)
}

// NewHub creates a hub delivering mic events from mic.
func NewHub(mic MicSubscriber, queues QueueReader) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		mic:        mic,
		queues:     queues,
	}
}

// OnUserFullyDisconnected sets the last-connection-closed callback. Call
// before Run.
func (h *Hub) OnUserFullyDisconnected(fn func(userID string)) {
	h.onUserFullyDisconnected = fn
}

// Run is the hub's loop. Started with `go hub.Run()`; returns after Shutdown.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	log.Printf("[ws] client connected: user=%s (total connections for user: %d)",
		client.userID, len(h.clients[client.userID]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	fullyDisconnected := len(clients) == 0
	if fullyDisconnected {
		delete(h.clients, client.userID)
	}
	remaining := len(clients)
	h.mu.Unlock()

	client.close()

	if !fullyDisconnected {
		log.Printf("[ws] client disconnected: user=%s (remaining: %d)", client.userID, remaining)
		return
	}

	log.Printf("[ws] user fully disconnected: %s", client.userID)
	if h.onUserFullyDisconnected != nil {
		go h.onUserFullyDisconnected(client.userID)
	}
}

// requestUnregister asks Run to drop client without blocking the caller.
func (h *Hub) requestUnregister(client *Client) {
	go func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()
}

func (h *Hub) nextSeq() int64 {
	return h.seq.Add(1)
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// IsOnline reports whether userID has at least one connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Shutdown closes every connection and stops Run. Disconnect callbacks
// are not fired: participants stay in their rooms across a restart.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, clients := range all {
		for client := range clients {
			client.close()
		}
	}
	log.Println("[ws] hub shut down, all connections closed")
}
