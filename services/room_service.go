package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// RoomStore is the room persistence RoomService uses.
type RoomStore interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, roomID string) (*models.Room, error)
}

// RoomBanStore manages per-room bans.
type RoomBanStore interface {
	Create(ctx context.Context, ban *models.RoomBan) error
	Delete(ctx context.Context, roomID, userID string) error
}

// RoomService creates rooms and moderates who may ask for the mic.
type RoomService interface {
	Create(ctx context.Context, ownerID string, req *models.CreateRoomRequest) (*models.Room, error)
	GetByID(ctx context.Context, roomID string) (*models.Room, error)

	// Ban bars targetUserID from requesting the mic and withdraws what
	// they currently hold (a pending request is denied, a granted mic
	// revoked). Authority only, and only over users ranked below the
	// actor; owners can not be banned.
	Ban(ctx context.Context, roomID, actorID, targetUserID string) (*models.RoomBan, error)

	// Unban lifts a ban. Authority only.
	Unban(ctx context.Context, roomID, actorID, targetUserID string) error
}

type roomService struct {
	rooms    RoomStore
	agencies AgencyGetter
	bans     RoomBanStore
	perms    PermissionService
	mic      MicService
}

// NewRoomService creates the room service.
func NewRoomService(rooms RoomStore, agencies AgencyGetter, bans RoomBanStore, perms PermissionService, mic MicService) RoomService {
	return &roomService{
		rooms:    rooms,
		agencies: agencies,
		bans:     bans,
		perms:    perms,
		mic:      mic,
	}
}

func (s *roomService) Create(ctx context.Context, ownerID string, req *models.CreateRoomRequest) (*models.Room, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	// Only an agency's owner or managers may open rooms under it.
	if req.AgencyID != nil {
		agency, err := s.agencies.GetByID(ctx, *req.AgencyID)
		if err != nil {
			return nil, err
		}
		role, err := s.perms.ResolveAgencyRole(ctx, ownerID, agency)
		if err != nil {
			return nil, err
		}
		if !role.AtLeast(models.RoleManager) {
			return nil, fmt.Errorf("%w: only agency owners and managers can create agency rooms", pkg.ErrUnauthorized)
		}
	}

	room := &models.Room{
		Name:        req.Name,
		OwnerID:     ownerID,
		AgencyID:    req.AgencyID,
		Featured:    req.Featured,
		MaxSpeakers: req.MaxSpeakers,
	}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	log.Printf("[room] room %s created by %s", room.ID, ownerID)
	return room, nil
}

func (s *roomService) GetByID(ctx context.Context, roomID string) (*models.Room, error) {
	return s.rooms.GetByID(ctx, roomID)
}

// requireAuthority loads the room and checks that actorID may moderate
// it. The room and the actor's role are returned for further checks.
func (s *roomService) requireAuthority(ctx context.Context, roomID, actorID string) (*models.Room, models.Role, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, models.RoleNone, err
	}
	role, err := s.perms.ResolveRole(ctx, actorID, room)
	if err != nil {
		return nil, models.RoleNone, err
	}
	if !role.IsAuthority() {
		return nil, models.RoleNone, fmt.Errorf("%w: role %s can not moderate", pkg.ErrUnauthorized, role)
	}
	return room, role, nil
}

func (s *roomService) Ban(ctx context.Context, roomID, actorID, targetUserID string) (*models.RoomBan, error) {
	if targetUserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", pkg.ErrBadRequest)
	}
	room, actorRole, err := s.requireAuthority(ctx, roomID, actorID)
	if err != nil {
		return nil, err
	}

	// Moderation only reaches down the hierarchy: a host can not ban a
	// fellow host or the owner who appointed them.
	targetRole, err := s.perms.ResolveRole(ctx, targetUserID, room)
	if err != nil {
		return nil, err
	}
	if targetRole == models.RoleOwner || targetRole.AtLeast(actorRole) {
		return nil, fmt.Errorf("%w: role %s can not ban a %s", pkg.ErrUnauthorized, actorRole, targetRole)
	}

	ban := &models.RoomBan{RoomID: roomID, UserID: targetUserID, BannedBy: actorID}
	if err := s.bans.Create(ctx, ban); err != nil {
		return nil, err
	}

	// Withdraw whatever the user holds. Best effort: the ban is in place
	// either way and a lost race leaves a state the authority can act on.
	if _, err := s.mic.Deny(ctx, roomID, actorID, targetUserID); err != nil && !ignorableAfterBan(err) {
		log.Printf("[room] ban of %s in %s: failed to deny request: %v", targetUserID, roomID, err)
	}
	if _, err := s.mic.Revoke(ctx, roomID, actorID, targetUserID); err != nil && !ignorableAfterBan(err) {
		log.Printf("[room] ban of %s in %s: failed to revoke mic: %v", targetUserID, roomID, err)
	}

	log.Printf("[room] user %s banned from room %s by %s", targetUserID, roomID, actorID)
	return ban, nil
}

// ignorableAfterBan: the user was not in the room or held nothing the
// action applies to.
func ignorableAfterBan(err error) bool {
	return errors.Is(err, pkg.ErrNotFound) || errors.Is(err, pkg.ErrInvalidTransition)
}

func (s *roomService) Unban(ctx context.Context, roomID, actorID, targetUserID string) error {
	if _, _, err := s.requireAuthority(ctx, roomID, actorID); err != nil {
		return err
	}
	if err := s.bans.Delete(ctx, roomID, targetUserID); err != nil {
		return err
	}

	log.Printf("[room] user %s unbanned from room %s by %s", targetUserID, roomID, actorID)
	return nil
}
