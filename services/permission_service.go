package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

// AgencyReader is the part of the agency store the resolver needs.
type AgencyReader interface {
	GetByID(ctx context.Context, agencyID string) (*models.Agency, error)
	GetMembership(ctx context.Context, agencyID, userID string) (*models.Membership, error)
}

// PermissionService is the single place that decides who may do what.
type PermissionService interface {
	// ResolveRole returns the highest role userID holds for room:
	// room owner, then agency owner, then agency membership, else none.
	ResolveRole(ctx context.Context, userID string, room *models.Room) (models.Role, error)

	// ResolveAgencyRole is the same for an agency on its own.
	ResolveAgencyRole(ctx context.Context, userID string, agency *models.Agency) (models.Role, error)

	// Authorize checks that role may fire action. Participant actions need
	// no role (presence is checked by the caller); authority actions need
	// host or above. Fails with pkg.ErrUnauthorized.
	Authorize(role models.Role, action models.MicAction) error

	// InvalidateMembership drops the cached role of (agency, user). Called
	// after every membership write, local or relayed.
	InvalidateMembership(agencyID, userID string)
}

type permissionService struct {
	agencies AgencyReader

	// "agency:<id>"            → *models.Agency
	// "member:<agency>:<user>" → models.Role (RoleNone for "no row")
	cache *gocache.Cache
}

// NewPermissionService creates the resolver. Lookups are cached for ttl.
func NewPermissionService(agencies AgencyReader, ttl time.Duration) PermissionService {
	return &permissionService{
		agencies: agencies,
		cache:    gocache.New(ttl, 2*ttl),
	}
}

func (s *permissionService) ResolveRole(ctx context.Context, userID string, room *models.Room) (models.Role, error) {
	if userID == "" {
		return models.RoleNone, nil
	}
	if room.OwnerID == userID {
		return models.RoleOwner, nil
	}
	if !room.HasAgency() {
		return models.RoleNone, nil
	}

	agency, err := s.agency(ctx, *room.AgencyID)
	if errors.Is(err, pkg.ErrNotFound) {
		// dangling agency reference: only room ownership counts
		return models.RoleNone, nil
	}
	if err != nil {
		return models.RoleNone, err
	}

	return s.ResolveAgencyRole(ctx, userID, agency)
}

func (s *permissionService) ResolveAgencyRole(ctx context.Context, userID string, agency *models.Agency) (models.Role, error) {
	if agency.OwnerID == userID {
		return models.RoleOwner, nil
	}
	return s.membershipRole(ctx, agency.ID, userID)
}

func (s *permissionService) Authorize(role models.Role, action models.MicAction) error {
	if MicActionActor(action) != ActorAuthority {
		return nil
	}
	if !role.IsAuthority() {
		return fmt.Errorf("%w: role %s can not %s", pkg.ErrUnauthorized, role, action)
	}
	return nil
}

func (s *permissionService) InvalidateMembership(agencyID, userID string) {
	s.cache.Delete(membershipKey(agencyID, userID))
}

// WatchMembershipChanges invalidates perms for every membership change on
// feed. With a relay attached this includes writes made by other
// instances, so a demotion is not served from a stale cache until the TTL
// runs out. Returns the unsubscribe func.
func WatchMembershipChanges(feed *changefeed.Feed, perms PermissionService) func() {
	return feed.Subscribe(changefeed.Filter{Table: repository.MembershipsTable}, func(c changefeed.Change) {
		agencyID, userID := c.Columns["agency_id"], c.Columns["user_id"]
		if agencyID == "" || userID == "" {
			return
		}
		perms.InvalidateMembership(agencyID, userID)
	})
}

func (s *permissionService) agency(ctx context.Context, agencyID string) (*models.Agency, error) {
	key := "agency:" + agencyID
	if v, ok := s.cache.Get(key); ok {
		if a, ok := v.(*models.Agency); ok {
			return a, nil
		}
	}

	a, err := s.agencies.GetByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, a, gocache.DefaultExpiration)
	return a, nil
}

func (s *permissionService) membershipRole(ctx context.Context, agencyID, userID string) (models.Role, error) {
	key := membershipKey(agencyID, userID)
	if v, ok := s.cache.Get(key); ok {
		if role, ok := v.(models.Role); ok {
			return role, nil
		}
	}

	role := models.RoleNone
	m, err := s.agencies.GetMembership(ctx, agencyID, userID)
	switch {
	case err == nil:
		role = m.Role
	case errors.Is(err, pkg.ErrNotFound):
	default:
		return models.RoleNone, fmt.Errorf("failed to resolve membership: %w", err)
	}

	s.cache.Set(key, role, gocache.DefaultExpiration)
	return role, nil
}

func membershipKey(agencyID, userID string) string {
	return "member:" + agencyID + ":" + userID
}
