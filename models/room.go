package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Room is a voice room. AgencyID links it to an Agency, whose mic policy
// and membership roster then apply.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	AgencyID    *string   `json:"agency_id"` // nil = independent room
	Featured    bool      `json:"featured"`
	MaxSpeakers int       `json:"max_speakers"` // 0 = uncapped
	CreatedAt   time.Time `json:"created_at"`
}

// HasAgency reports whether the room belongs to an agency.
func (r *Room) HasAgency() bool {
	return r.AgencyID != nil && *r.AgencyID != ""
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	Name        string  `json:"name"`
	AgencyID    *string `json:"agency_id"`
	Featured    bool    `json:"featured"`
	MaxSpeakers int     `json:"max_speakers"`
}

// Validate checks and normalizes the request.
func (r *CreateRoomRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	nameLen := utf8.RuneCountInString(r.Name)
	if nameLen < 1 || nameLen > 100 {
		return fmt.Errorf("room name must be between 1 and 100 characters")
	}
	if r.MaxSpeakers < 0 || r.MaxSpeakers > 64 {
		return fmt.Errorf("max_speakers must be between 0 and 64")
	}
	if r.AgencyID != nil && strings.TrimSpace(*r.AgencyID) == "" {
		r.AgencyID = nil
	}
	return nil
}

// RoomBan bars a user from requesting the mic in a room. Enforced by the
// store's access policy, not by the services.
type RoomBan struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	BannedBy  string    `json:"banned_by"`
	CreatedAt time.Time `json:"created_at"`
}
