package services

import (
	"sort"
	"time"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// RoomMicPolicy returns the policy in force for room: its agency's default,
// or free for a room without an agency.
func RoomMicPolicy(room *models.Room, agency *models.Agency) models.MicPolicy {
	if !room.HasAgency() || agency == nil || !agency.DefaultMicPolicy.Valid() {
		return models.MicPolicyFree
	}
	return agency.DefaultMicPolicy
}

// OrderMicQueue returns the pending requests among participants (present,
// status requested) in queue order. The input is not modified.
//
//   - queue: VIP priority descending, then request time ascending, then
//     user ID as the final tie-break, so the order is total
//   - free: request time ascending (display order only)
func OrderMicQueue(policy models.MicPolicy, participants []models.Participant) []models.Participant {
	pending := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Present() && p.MicStatus == models.MicStatusRequested {
			pending = append(pending, p)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if policy == models.MicPolicyQueue && a.VipPriority != b.VipPriority {
			return a.VipPriority > b.VipPriority
		}
		at, bt := requestedAt(a), requestedAt(b)
		if !at.Equal(bt) {
			return at.Before(bt)
		}
		return a.UserID < b.UserID
	})

	return pending
}

// NextInMicQueue returns the participant "grant next" selects, or false
// when nobody is waiting. Under free it is the oldest request.
func NextInMicQueue(policy models.MicPolicy, participants []models.Participant) (models.Participant, bool) {
	ordered := OrderMicQueue(policy, participants)
	if len(ordered) == 0 {
		return models.Participant{}, false
	}
	return ordered[0], true
}

func requestedAt(p models.Participant) time.Time {
	if p.RequestedAt != nil {
		return *p.RequestedAt
	}
	return p.UpdatedAt
}
