package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// RoomHandler serves room creation, presence and moderation.
type RoomHandler struct {
	rooms services.RoomService
	mic   services.MicService
}

// NewRoomHandler creates the handler.
func NewRoomHandler(rooms services.RoomService, mic services.MicService) *RoomHandler {
	return &RoomHandler{rooms: rooms, mic: mic}
}

// Create opens a room owned by the caller.
//
//	POST /api/rooms
//	Request: { "name": "...", "agency_id": "...", "max_speakers": 8 }
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	var req models.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.rooms.Create(r.Context(), identity.UserID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, room)
}

// Get returns the room resolved by RoomMiddleware.
//
//	GET /api/rooms/{roomId}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if room, ok := RoomFrom(r); ok {
		pkg.JSON(w, http.StatusOK, room)
		return
	}

	room, err := h.rooms.GetByID(r.Context(), roomID(r))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, room)
}

// Join enters the room. Joining again is harmless.
//
//	POST /api/rooms/{roomId}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	p, err := h.mic.Join(r.Context(), roomID(r), identity.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, p)
}

// Leave exits the room, releasing the caller's mic.
//
//	POST /api/rooms/{roomId}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	if err := h.mic.Leave(r.Context(), roomID(r), identity.UserID); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "left room"})
}

// Participants lists who is currently in the room.
//
//	GET /api/rooms/{roomId}/participants
func (h *RoomHandler) Participants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.mic.Participants(r.Context(), roomID(r))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, participants)
}

// Ban bars a user from requesting the mic.
//
//	POST /api/rooms/{roomId}/bans
//	Request: { "user_id": "..." }
func (h *RoomHandler) Ban(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	var req models.MicTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ban, err := h.rooms.Ban(r.Context(), roomID(r), identity.UserID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, ban)
}

// Unban lifts a ban.
//
//	DELETE /api/rooms/{roomId}/bans/{userId}
func (h *RoomHandler) Unban(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	if err := h.rooms.Unban(r.Context(), roomID(r), identity.UserID, r.PathValue("userId")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "user unbanned"})
}
