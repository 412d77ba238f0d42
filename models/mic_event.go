package models

import "time"

// MicEvent is one mic status transition as delivered to listeners.
//
// ID is the transition identity (stable across redeliveries of the same
// change), Version the participant row version after the write. Within a
// single participant's stream Version and OccurredAt only increase.
type MicEvent struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	MicStatus  MicStatus `json:"mic_status"`
	Present    bool      `json:"present"` // false once the participant left
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HandRaised is the derived "hand raised" view of the event.
func (e MicEvent) HandRaised() bool {
	return e.MicStatus == MicStatusRequested
}
