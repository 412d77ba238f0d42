package services

import (
	"context"
	"fmt"
	"log"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// AgencyStore is the agency persistence AgencyService uses.
type AgencyStore interface {
	Create(ctx context.Context, agency *models.Agency) error
	GetByID(ctx context.Context, agencyID string) (*models.Agency, error)
	SetMembership(ctx context.Context, m *models.Membership) error
	DeleteMembership(ctx context.Context, agencyID, userID string) error
}

// AgencyService manages agencies and their roster.
type AgencyService interface {
	Create(ctx context.Context, ownerID string, req *models.CreateAgencyRequest) (*models.Agency, error)

	// SetMember gives userID a role in the agency. The actor must be the
	// agency owner or a manager; only owners can hand out owner or manager.
	SetMember(ctx context.Context, actorID, agencyID, userID string, req *models.SetMembershipRequest) (*models.Membership, error)

	// RemoveMember drops userID from the roster, same rules as SetMember.
	RemoveMember(ctx context.Context, actorID, agencyID, userID string) error
}

type agencyService struct {
	agencies AgencyStore
	perms    PermissionService
}

// NewAgencyService creates the agency service.
func NewAgencyService(agencies AgencyStore, perms PermissionService) AgencyService {
	return &agencyService{agencies: agencies, perms: perms}
}

func (s *agencyService) Create(ctx context.Context, ownerID string, req *models.CreateAgencyRequest) (*models.Agency, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	agency := &models.Agency{
		Name:             req.Name,
		OwnerID:          ownerID,
		DefaultMicPolicy: req.DefaultMicPolicy,
		ThemeColor:       req.ThemeColor,
		ThemeJSON:        req.ThemeJSON,
	}
	if err := s.agencies.Create(ctx, agency); err != nil {
		return nil, err
	}
	s.perms.InvalidateMembership(agency.ID, ownerID)

	log.Printf("[agency] agency %s created by %s", agency.ID, ownerID)
	return agency, nil
}

// authorizeRosterChange checks the actor may change userID's entry to
// (or from) role.
func (s *agencyService) authorizeRosterChange(ctx context.Context, actorID string, agency *models.Agency, userID string, role models.Role) error {
	actorRole, err := s.perms.ResolveAgencyRole(ctx, actorID, agency)
	if err != nil {
		return err
	}
	if !actorRole.AtLeast(models.RoleManager) {
		return fmt.Errorf("%w: only agency owners and managers can manage members", pkg.ErrUnauthorized)
	}
	if role.AtLeast(models.RoleManager) && actorRole != models.RoleOwner {
		return fmt.Errorf("%w: only agency owners can manage owners and managers", pkg.ErrUnauthorized)
	}
	if userID == agency.OwnerID {
		return fmt.Errorf("%w: the agency owner's role can not be changed", pkg.ErrBadRequest)
	}
	return nil
}

// SetMember flow:
//  1. Validate the requested role
//  2. Resolve the target's current role, so a manager can not touch a
//     manager even while demoting them
//  3. Check the actor against the higher of current and requested
//  4. Upsert, then invalidate the cached role
func (s *agencyService) SetMember(ctx context.Context, actorID, agencyID, userID string, req *models.SetMembershipRequest) (*models.Membership, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	agency, err := s.agencies.GetByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	// the entry being replaced counts too: a manager can not demote another manager
	current, err := s.perms.ResolveAgencyRole(ctx, userID, agency)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRosterChange(ctx, actorID, agency, userID, models.MaxRole(current, req.Role)); err != nil {
		return nil, err
	}

	m := &models.Membership{AgencyID: agencyID, UserID: userID, Role: req.Role}
	if err := s.agencies.SetMembership(ctx, m); err != nil {
		return nil, err
	}
	// Drop our cached role before returning; other instances drop theirs
	// when the store's change reaches them.
	s.perms.InvalidateMembership(agencyID, userID)

	log.Printf("[agency] %s set %s to %s in agency %s", actorID, userID, req.Role, agencyID)
	return m, nil
}

func (s *agencyService) RemoveMember(ctx context.Context, actorID, agencyID, userID string) error {
	agency, err := s.agencies.GetByID(ctx, agencyID)
	if err != nil {
		return err
	}

	current, err := s.perms.ResolveAgencyRole(ctx, userID, agency)
	if err != nil {
		return err
	}
	if err := s.authorizeRosterChange(ctx, actorID, agency, userID, current); err != nil {
		return err
	}

	if err := s.agencies.DeleteMembership(ctx, agencyID, userID); err != nil {
		return err
	}
	s.perms.InvalidateMembership(agencyID, userID)

	log.Printf("[agency] %s removed %s from agency %s", actorID, userID, agencyID)
	return nil
}
