// Package ws is the realtime channel to clients.
//
//   - Hub: tracks connections per user
//   - Client: one websocket connection with its mic subscriptions
//   - Event: the wire format in both directions
//
// Mic updates flow from the store, not from the services: a committed
// write goes through the change feed and the MicBus to the subscribed
// clients' send buffers.
package ws

import (
	"time"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// Event is one websocket message.
//
// Seq increases on every outbound event so clients can spot gaps.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → server
const (
	OpHeartbeat          = "heartbeat"            // every 30s
	OpMicSubscribeRoom   = "mic_subscribe_room"   // d: {room_id}
	OpMicUnsubscribeRoom = "mic_unsubscribe_room" // d: {room_id}
	OpMicSubscribeSelf   = "mic_subscribe_self"   // d: {room_id}
	OpMicUnsubscribeSelf = "mic_unsubscribe_self" // d: {room_id}
)

// Server → client
const (
	OpReady           = "ready"
	OpHeartbeatAck    = "heartbeat_ack"
	OpMicStatusUpdate = "mic_status_update" // one participant's transition
	OpMicQueueSync    = "mic_queue_sync"    // full queue of a room
	OpError           = "error"             // a client request failed
)

// ReadyData is sent once after the connection is registered.
type ReadyData struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// MicSubscriptionData is the payload of the subscribe/unsubscribe ops.
type MicSubscriptionData struct {
	RoomID string `json:"room_id"`
}

// MicStatusUpdateData is a mic transition as sent to clients.
type MicStatusUpdateData struct {
	ID         string           `json:"id"`
	RoomID     string           `json:"room_id"`
	UserID     string           `json:"user_id"`
	MicStatus  models.MicStatus `json:"mic_status"`
	HandRaised bool             `json:"hand_raised"`
	Present    bool             `json:"present"`
	Version    int64            `json:"version"`
	OccurredAt time.Time        `json:"occurred_at"`
}

func newMicStatusUpdate(evt models.MicEvent) MicStatusUpdateData {
	return MicStatusUpdateData{
		ID:         evt.ID,
		RoomID:     evt.RoomID,
		UserID:     evt.UserID,
		MicStatus:  evt.MicStatus,
		HandRaised: evt.HandRaised(),
		Present:    evt.Present,
		Version:    evt.Version,
		OccurredAt: evt.OccurredAt,
	}
}

// ErrorData reports a failed client request.
type ErrorData struct {
	Op      string `json:"op"`      // the request that failed
	RoomID  string `json:"room_id"` // its room, when it had one
	Code    int    `json:"code"`    // HTTP-equivalent status
	Message string `json:"message"`
}
