package repository

import (
	"context"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// RoomBanRepository stores per-room bans. The ban itself is enforced by
// the participants access policy in the schema; this only manages rows.
type RoomBanRepository interface {
	// Create returns pkg.ErrAlreadyExists when the user is already banned.
	Create(ctx context.Context, ban *models.RoomBan) error

	// Delete returns pkg.ErrNotFound when the user was not banned.
	Delete(ctx context.Context, roomID, userID string) error

}
