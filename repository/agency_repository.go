package repository

import (
	"context"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// MembershipsTable is the change feed table name of membership rows.
const MembershipsTable = "agency_memberships"

// AgencyRepository stores agencies and their membership roster. Every
// committed membership write is published on the change feed.
type AgencyRepository interface {
	// Create inserts the agency and an owner membership for its owner in
	// one transaction.
	Create(ctx context.Context, agency *models.Agency) error

	// GetByID returns pkg.ErrNotFound when the agency does not exist.
	GetByID(ctx context.Context, agencyID string) (*models.Agency, error)

	// GetMembership returns pkg.ErrNotFound when the user has no role in
	// the agency.
	GetMembership(ctx context.Context, agencyID, userID string) (*models.Membership, error)

	// SetMembership inserts or replaces the user's role.
	SetMembership(ctx context.Context, m *models.Membership) error

	// DeleteMembership returns pkg.ErrNotFound when there was nothing to delete.
	DeleteMembership(ctx context.Context, agencyID, userID string) error
}
