package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

const (
	// writeWait bounds a single write.
	writeWait = 10 * time.Second

	// pongWait: three missed 30s heartbeats.
	pongWait = 90 * time.Second

	// maxMessageSize caps inbound messages; clients only send small ops.
	maxMessageSize = 4096

	// sendBufferSize: a client that falls this far behind is dropped.
	sendBufferSize = 256

	// queueSyncTimeout bounds the queue read behind a mic_queue_sync.
	queueSyncTimeout = 5 * time.Second
)

// Client is one websocket connection.
//
// Three goroutines per connection: ReadPump handles inbound ops, WritePump
// owns writes to the socket, and syncPump loads queues for
// mic_queue_sync. Bus listeners run on the writer's goroutine, so they
// only append to send or mark a room dirty.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	username string

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// subscription key ("room:<id>" or "self:<id>") → dispose
	subMu sync.Mutex
	subs  map[string]func()

	// rooms whose queue changed since the last mic_queue_sync
	dirtyMu    sync.Mutex
	dirty      map[string]struct{}
	syncSignal chan struct{}
	done       chan struct{}

	mu sync.Mutex // guards conn writes
}

func newClient(hub *Hub, conn *websocket.Conn, identity *models.Identity) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		userID:     identity.UserID,
		username:   identity.Username,
		send:       make(chan []byte, sendBufferSize),
		subs:       make(map[string]func()),
		dirty:      make(map[string]struct{}),
		syncSignal: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// ReadPump reads until the connection drops, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(rawMessage, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpMicSubscribeRoom:
		if roomID, ok := c.roomOf(event); ok {
			c.subscribeRoom(roomID)
		}
	case OpMicUnsubscribeRoom:
		if roomID, ok := c.roomOf(event); ok {
			c.unsubscribe("room:" + roomID)
		}
	case OpMicSubscribeSelf:
		if roomID, ok := c.roomOf(event); ok {
			c.subscribeSelf(roomID)
		}
	case OpMicUnsubscribeSelf:
		if roomID, ok := c.roomOf(event); ok {
			c.unsubscribe("self:" + roomID)
		}

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// roomOf extracts room_id from a subscription op.
func (c *Client) roomOf(event Event) (string, bool) {
	// event.Data arrives as a generic map; round-trip it into the payload type
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return "", false
	}

	var data MicSubscriptionData
	if err := json.Unmarshal(dataBytes, &data); err != nil || data.RoomID == "" {
		c.sendError(event.Op, "", pkg.ErrBadRequest)
		return "", false
	}
	return data.RoomID, true
}

// ─── Mic subscriptions ───

func (c *Client) subscribeRoom(roomID string) {
	key := "room:" + roomID
	added := c.addSubscription(key, func() func() {
		return c.hub.mic.SubscribeRoom(roomID, func(evt models.MicEvent) {
			c.sendEvent(Event{Op: OpMicStatusUpdate, Data: newMicStatusUpdate(evt)})
			c.markQueueDirty(evt.RoomID)
		})
	})
	if !added {
		return
	}

	// loaded after subscribing, so no transition falls between the
	// snapshot and the first update; this also validates the room
	queue, err := c.loadQueue(roomID)
	if err != nil {
		c.unsubscribe(key)
		c.sendError(OpMicSubscribeRoom, roomID, err)
		return
	}
	c.sendEvent(Event{Op: OpMicQueueSync, Data: queue})
}

func (c *Client) subscribeSelf(roomID string) {
	c.addSubscription("self:"+roomID, func() func() {
		return c.hub.mic.SubscribeSelf(roomID, c.userID, func(evt models.MicEvent) {
			c.sendEvent(Event{Op: OpMicStatusUpdate, Data: newMicStatusUpdate(evt)})
		})
	})
}

// addSubscription registers once per key. False when the key was already
// subscribed or the client is closed.
func (c *Client) addSubscription(key string, subscribe func() func()) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.subs == nil {
		return false
	}
	if _, exists := c.subs[key]; exists {
		return false
	}
	c.subs[key] = subscribe()
	return true
}

func (c *Client) unsubscribe(key string) {
	c.subMu.Lock()
	dispose, ok := c.subs[key]
	delete(c.subs, key)
	c.subMu.Unlock()

	if ok {
		dispose()
	}
}

// disposeAll drops every subscription; later subscribes are ignored.
func (c *Client) disposeAll() {
	c.subMu.Lock()
	subs := c.subs
	c.subs = nil
	c.subMu.Unlock()

	for _, dispose := range subs {
		dispose()
	}
}

// SubscriptionCount returns the number of live mic subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return len(c.subs)
}

// ─── Queue sync ───

func (c *Client) markQueueDirty(roomID string) {
	c.dirtyMu.Lock()
	c.dirty[roomID] = struct{}{}
	c.dirtyMu.Unlock()

	select {
	case c.syncSignal <- struct{}{}:
	default:
	}
}

func (c *Client) takeDirty() []string {
	c.dirtyMu.Lock()
	defer c.dirtyMu.Unlock()

	rooms := make([]string, 0, len(c.dirty))
	for roomID := range c.dirty {
		rooms = append(rooms, roomID)
	}
	c.dirty = make(map[string]struct{})
	return rooms
}

// syncPump sends a fresh mic_queue_sync for every dirty room. Bursts of
// events collapse into one read per room.
func (c *Client) syncPump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.syncSignal:
			for _, roomID := range c.takeDirty() {
				queue, err := c.loadQueue(roomID)
				if err != nil {
					log.Printf("[ws] failed to load mic queue of %s for user %s: %v", roomID, c.userID, err)
					continue
				}
				c.sendEvent(Event{Op: OpMicQueueSync, Data: queue})
			}
		}
	}
}

func (c *Client) loadQueue(roomID string) (*models.MicQueue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queueSyncTimeout)
	defer cancel()
	return c.hub.queues.Queue(ctx, roomID)
}

// ─── Outbound ───

func (c *Client) sendError(op, roomID string, err error) {
	c.sendEvent(Event{Op: OpError, Data: ErrorData{
		Op:      op,
		RoomID:  roomID,
		Code:    pkg.StatusOf(err),
		Message: pkg.PublicMessage(err),
	}})
}

// sendEvent queues event for WritePump. A full buffer drops the client.
func (c *Client) sendEvent(event Event) {
	event.Seq = c.hub.nextSeq()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal event for user %s: %v", c.userID, err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("[ws] send buffer full for user %s, dropping connection", c.userID)
		c.hub.requestUnregister(c)
	}
}

// close disposes the subscriptions, stops syncPump and closes send so
// WritePump ends. Safe to call more than once.
func (c *Client) close() {
	c.disposeAll()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
}

// WritePump writes queued messages until send is closed.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			c.writeMessage(websocket.CloseMessage, nil)
			return
		}

		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
