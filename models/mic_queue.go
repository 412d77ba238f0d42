package models

// MicQueue is the ordered list of pending requests of a room. Under the
// queue policy the first entry is who "grant next" picks.
type MicQueue struct {
	RoomID  string        `json:"room_id"`
	Policy  MicPolicy     `json:"policy"`
	Entries []Participant `json:"entries"`
}

// RoleResponse is returned by GET /api/rooms/{roomId}/role.
type RoleResponse struct {
	RoomID      string `json:"room_id"`
	Role        Role   `json:"role"`
	IsAuthority bool   `json:"is_authority"`
}
