// Package handlers holds the HTTP endpoints.
//
// Handlers stay thin: parse the request, call a service, write the
// response. Authorization and mic rules live in the services.
package handlers

import (
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// contextKey keeps request context keys out of other packages' namespace.
type contextKey string

// IdentityContextKey carries the *models.Identity set by AuthMiddleware.
const IdentityContextKey contextKey = "identity"

// RoomContextKey carries the *models.Room set by RoomMiddleware.
const RoomContextKey contextKey = "room"

// IdentityFrom returns the authenticated caller.
func IdentityFrom(r *http.Request) (*models.Identity, bool) {
	id, ok := r.Context().Value(IdentityContextKey).(*models.Identity)
	return id, ok && id != nil
}

// RoomFrom returns the room resolved from the path.
func RoomFrom(r *http.Request) (*models.Room, bool) {
	room, ok := r.Context().Value(RoomContextKey).(*models.Room)
	return room, ok && room != nil
}

// roomID is the room of the request: the resolved room when
// RoomMiddleware ran, the raw path value otherwise.
func roomID(r *http.Request) string {
	if room, ok := RoomFrom(r); ok {
		return room.ID
	}
	return r.PathValue("roomId")
}
