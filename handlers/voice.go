package handlers

import (
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// VoiceHandler hands out LiveKit tokens.
type VoiceHandler struct {
	voiceService services.VoiceService
}

// NewVoiceHandler creates the handler.
func NewVoiceHandler(voiceService services.VoiceService) *VoiceHandler {
	return &VoiceHandler{voiceService: voiceService}
}

// Token issues a LiveKit token for the room. The publish grant follows the
// caller's mic status.
//
//	POST /api/rooms/{roomId}/voice/token
//	Response: { "token": "eyJ...", "url": "ws://localhost:7880", "room_id": "...", "can_publish": false }
func (h *VoiceHandler) Token(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	resp, err := h.voiceService.GenerateToken(r.Context(), roomID(r), identity)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, resp)
}
