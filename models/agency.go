package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MicPolicy decides how "grant next" picks the next speaker.
type MicPolicy string

const (
	// MicPolicyQueue orders requests by VIP priority, then request time.
	MicPolicyQueue MicPolicy = "queue"
	// MicPolicyFree leaves the choice to the authority.
	MicPolicyFree MicPolicy = "free"
)

// Valid reports whether p is a known policy.
func (p MicPolicy) Valid() bool {
	return p == MicPolicyQueue || p == MicPolicyFree
}

// Agency groups rooms under one owner and a shared roster.
type Agency struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OwnerID          string    `json:"owner_id"`
	DefaultMicPolicy MicPolicy `json:"default_mic_policy"`
	ThemeColor       string    `json:"theme_color"`
	ThemeJSON        string    `json:"theme_json"`
	CreatedAt        time.Time `json:"created_at"`
}

// Membership is one roster entry of an agency. Unique per (agency, user).
type Membership struct {
	AgencyID  string    `json:"agency_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAgencyRequest is the body of POST /api/agencies.
type CreateAgencyRequest struct {
	Name             string    `json:"name"`
	DefaultMicPolicy MicPolicy `json:"default_mic_policy"`
	ThemeColor       string    `json:"theme_color"`
	ThemeJSON        string    `json:"theme_json"`
}

// Validate checks and normalizes the request.
func (r *CreateAgencyRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	nameLen := utf8.RuneCountInString(r.Name)
	if nameLen < 1 || nameLen > 100 {
		return fmt.Errorf("agency name must be between 1 and 100 characters")
	}
	if r.DefaultMicPolicy == "" {
		r.DefaultMicPolicy = MicPolicyQueue
	}
	if !r.DefaultMicPolicy.Valid() {
		return fmt.Errorf("default_mic_policy must be %q or %q", MicPolicyQueue, MicPolicyFree)
	}
	if r.ThemeJSON == "" {
		r.ThemeJSON = "{}"
	}
	return nil
}

// SetMembershipRequest is the body of PUT /api/agencies/{agencyId}/members/{userId}.
type SetMembershipRequest struct {
	Role Role `json:"role"`
}

// Validate checks the requested role.
func (r *SetMembershipRequest) Validate() error {
	role, err := ParseMembershipRole(string(r.Role))
	if err != nil {
		return err
	}
	r.Role = role
	return nil
}
