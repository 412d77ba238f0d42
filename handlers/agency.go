package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// AgencyHandler serves agency creation and roster management.
type AgencyHandler struct {
	agencies services.AgencyService
}

// NewAgencyHandler creates the handler.
func NewAgencyHandler(agencies services.AgencyService) *AgencyHandler {
	return &AgencyHandler{agencies: agencies}
}

// Create makes the caller the owner of a new agency.
//
//	POST /api/agencies
//	Request: { "name": "...", "default_mic_policy": "queue" }
func (h *AgencyHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	var req models.CreateAgencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agency, err := h.agencies.Create(r.Context(), identity.UserID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, agency)
}

// SetMember adds a user to the roster or changes their role.
//
//	PUT /api/agencies/{agencyId}/members/{userId}
//	Request: { "role": "host" }
func (h *AgencyHandler) SetMember(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	var req models.SetMembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.agencies.SetMember(r.Context(), identity.UserID, r.PathValue("agencyId"), r.PathValue("userId"), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, m)
}

// RemoveMember drops a user from the roster.
//
//	DELETE /api/agencies/{agencyId}/members/{userId}
func (h *AgencyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "identity not found in context")
		return
	}

	if err := h.agencies.RemoveMember(r.Context(), identity.UserID, r.PathValue("agencyId"), r.PathValue("userId")); err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{"message": "member removed"})
}
