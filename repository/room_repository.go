package repository

import (
	"context"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// RoomRepository stores voice rooms.
type RoomRepository interface {
	// Create inserts room, assigning ID and CreatedAt.
	Create(ctx context.Context, room *models.Room) error

	// GetByID returns pkg.ErrNotFound when the room does not exist.
	GetByID(ctx context.Context, roomID string) (*models.Room, error)
}
