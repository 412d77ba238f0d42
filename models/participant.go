// Package models: participant and mic state.
//
// A participant's speaking permission is a single enumerated status. The
// "hand raised" flag shown by clients is derived from it and never stored,
// so the two can not disagree.
package models

import (
	"encoding/json"
	"time"
)

// MicStatus is the speaking-permission state of a participant in a room.
type MicStatus string

const (
	MicStatusNone      MicStatus = "none"
	MicStatusRequested MicStatus = "requested"
	MicStatusGranted   MicStatus = "granted"
)

// Valid reports whether s is a known status.
func (s MicStatus) Valid() bool {
	switch s {
	case MicStatusNone, MicStatusRequested, MicStatusGranted:
		return true
	}
	return false
}

// MicAction is an event fed to the mic state machine.
type MicAction string

const (
	MicActionRaiseHand MicAction = "raise_hand"
	MicActionCancel    MicAction = "cancel"
	MicActionGrant     MicAction = "grant"
	MicActionDeny      MicAction = "deny"
	MicActionRevoke    MicAction = "revoke"
	MicActionLeaveRoom MicAction = "participant_leaves_room"
)

// AllMicActions lists every action, in table order.
var AllMicActions = []MicAction{
	MicActionRaiseHand,
	MicActionCancel,
	MicActionGrant,
	MicActionDeny,
	MicActionRevoke,
	MicActionLeaveRoom,
}

// AllMicStatuses lists every status.
var AllMicStatuses = []MicStatus{MicStatusNone, MicStatusRequested, MicStatusGranted}

// Participant is the (room, user) record. Version increases by one on
// every write and is part of the compare-and-set.
type Participant struct {
	RoomID      string     `json:"room_id"`
	UserID      string     `json:"user_id"`
	MicStatus   MicStatus  `json:"mic_status"`
	RequestedAt *time.Time `json:"requested_at"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at"`
	VipLevelID  *string    `json:"vip_level_id"`
	VipPriority int        `json:"vip_priority"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HandRaised is the derived "hand raised" view.
func (p *Participant) HandRaised() bool {
	return p.MicStatus == MicStatusRequested
}

// Present reports whether the participant is currently in the room.
func (p *Participant) Present() bool {
	return p.LeftAt == nil
}

// MarshalJSON adds the derived hand_raised field.
func (p Participant) MarshalJSON() ([]byte, error) {
	type alias Participant
	return json.Marshal(struct {
		alias
		HandRaised bool `json:"hand_raised"`
	}{
		alias:      alias(p),
		HandRaised: p.HandRaised(),
	})
}

// MicTargetRequest is the body of grant/deny/revoke.
type MicTargetRequest struct {
	UserID string `json:"user_id"`
}
