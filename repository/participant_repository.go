package repository

import (
	"context"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// ParticipantsTable is the change feed table name of participant rows.
const ParticipantsTable = "participants"

// StatusChange is one compare-and-set of a participant's mic status. It
// applies only while the row still has status From and version Version.
type StatusChange struct {
	RoomID  string
	UserID  string
	From    models.MicStatus
	To      models.MicStatus
	Version int64
}

// ParticipantRepository stores the (room, user) mic state.
//
// Every successful write publishes the new row on the change feed before
// returning, in commit order per participant.
type ParticipantRepository interface {
	// Join inserts the participant, or brings a departed one back with a
	// fresh state. The bool is false when the user was already present;
	// the current row is returned unchanged then.
	Join(ctx context.Context, roomID, userID string, vip *models.VipLevel) (*models.Participant, bool, error)

	// Get returns pkg.ErrNotFound when the user never joined the room.
	Get(ctx context.Context, roomID, userID string) (*models.Participant, error)

	// CompareAndSetStatus applies c. Returns pkg.ErrStaleState when the
	// row no longer matches (or the participant left), pkg.ErrSlotsFull
	// when a grant would exceed the room's speaker cap, and
	// pkg.ErrAccessDenied when the store's access policy rejects it.
	CompareAndSetStatus(ctx context.Context, c StatusChange) (*models.Participant, error)

	// MarkLeft records the departure of a participant whose status is
	// none. pkg.ErrStaleState when the status is not none; a participant
	// that already left is returned as is.
	MarkLeft(ctx context.Context, roomID, userID string) (*models.Participant, error)

	// ListByRoom returns present participants ordered by join time.
	ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error)

	// ListByStatus returns present participants of roomID with status.
	ListByStatus(ctx context.Context, roomID string, status models.MicStatus) ([]models.Participant, error)

	// ListRoomIDsByUser returns the rooms the user is present in.
	ListRoomIDsByUser(ctx context.Context, userID string) ([]string, error)
}
