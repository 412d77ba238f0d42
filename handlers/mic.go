package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// MicHandler serves the mic arbitration endpoints under
// /api/rooms/{roomId}/mic.
type MicHandler struct {
	mic services.MicService
}

// NewMicHandler creates the handler.
func NewMicHandler(mic services.MicService) *MicHandler {
	return &MicHandler{mic: mic}
}

// Raise puts the caller's hand up.
//
//	POST /api/rooms/{roomId}/mic/raise
func (h *MicHandler) Raise(w http.ResponseWriter, r *http.Request) {
	h.selfAction(w, r, h.mic.RaiseHand)
}

// Cancel withdraws the caller's pending request.
//
//	POST /api/rooms/{roomId}/mic/cancel
func (h *MicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.selfAction(w, r, h.mic.CancelRequest)
}

// Grant gives the mic to a requesting participant.
//
//	POST /api/rooms/{roomId}/mic/grant
//	Request: { "user_id": "..." }
func (h *MicHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.mic.Grant)
}

// Deny rejects a pending request.
//
//	POST /api/rooms/{roomId}/mic/deny
func (h *MicHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.mic.Deny)
}

// Revoke takes the mic back from a speaker.
//
//	POST /api/rooms/{roomId}/mic/revoke
func (h *MicHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.targetAction(w, r, h.mic.Revoke)
}

// GrantNext grants the head of the queue.
//
//	POST /api/rooms/{roomId}/mic/grant-next
func (h *MicHandler) GrantNext(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	p, err := h.mic.GrantNext(r.Context(), roomID(r), identity.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, p)
}

// Queue lists pending requests in grant order.
//
//	GET /api/rooms/{roomId}/mic/queue
func (h *MicHandler) Queue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.mic.Queue(r.Context(), roomID(r))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, queue)
}

// Speakers lists the participants holding the mic.
//
//	GET /api/rooms/{roomId}/mic/speakers
func (h *MicHandler) Speakers(w http.ResponseWriter, r *http.Request) {
	speakers, err := h.mic.Speakers(r.Context(), roomID(r))
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, speakers)
}

// Role returns the caller's resolved role in the room.
//
//	GET /api/rooms/{roomId}/role
func (h *MicHandler) Role(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	resp, err := h.mic.Role(r.Context(), roomID(r), identity.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, resp)
}

type selfMicAction func(ctx context.Context, roomID, userID string) (*models.Participant, error)

type targetMicAction func(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error)

func (h *MicHandler) selfAction(w http.ResponseWriter, r *http.Request, action selfMicAction) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	p, err := action(r.Context(), roomID(r), identity.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, p)
}

func (h *MicHandler) targetAction(w http.ResponseWriter, r *http.Request, action targetMicAction) {
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
	if req.UserID == "" {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	p, err := action(r.Context(), roomID(r), identity.UserID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, p)
}
