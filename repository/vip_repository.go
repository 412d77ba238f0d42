package repository

import (
	"context"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// VipRepository reads VIP tiers. Tiers and user assignments are managed
// outside this server; nothing here writes them.
type VipRepository interface {
	// GetForUser returns pkg.ErrNotFound when the user has no tier.
	GetForUser(ctx context.Context, userID string) (*models.VipLevel, error)
}
