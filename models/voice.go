// Package models: voice transport payloads.
//
// Audio itself goes through LiveKit; this server only hands out tokens whose
// publish grant mirrors the participant's mic status.
package models

// VoiceTokenResponse is returned by POST /api/rooms/{roomId}/voice/token.
// The client connects to LiveKit directly with it.
type VoiceTokenResponse struct {
	Token      string `json:"token"`       // LiveKit JWT
	URL        string `json:"url"`         // LiveKit websocket URL
	RoomID     string `json:"room_id"`     // LiveKit room name = room ID
	CanPublish bool   `json:"can_publish"` // true only while granted
}
