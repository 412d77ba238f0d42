// Package services holds the business logic.
//
// The mic arbitration flow: the facade (MicService) reads the participant,
// runs the action through the transition table, and persists it with a
// compare-and-set. The repository publishes the committed row on the
// change feed, and the MicBus delivers it to listeners. Nothing here
// broadcasts directly.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

// ─── ISP interfaces ───

// RoomGetter loads rooms.
type RoomGetter interface {
	GetByID(ctx context.Context, roomID string) (*models.Room, error)
}

// AgencyGetter loads agencies.
type AgencyGetter interface {
	GetByID(ctx context.Context, agencyID string) (*models.Agency, error)
}

// VipGetter loads a user's VIP tier.
type VipGetter interface {
	GetForUser(ctx context.Context, userID string) (*models.VipLevel, error)
}

// ParticipantStore is the participant persistence the facade uses.
type ParticipantStore interface {
	Join(ctx context.Context, roomID, userID string, vip *models.VipLevel) (*models.Participant, bool, error)
	Get(ctx context.Context, roomID, userID string) (*models.Participant, error)
	CompareAndSetStatus(ctx context.Context, c repository.StatusChange) (*models.Participant, error)
	MarkLeft(ctx context.Context, roomID, userID string) (*models.Participant, error)
	ListByRoom(ctx context.Context, roomID string) ([]models.Participant, error)
	ListRoomIDsByUser(ctx context.Context, userID string) ([]string, error)
}

// RaiseHandLimiter throttles raise-hand per user.
type RaiseHandLimiter interface {
	Allow(key string) bool
	RetryAfterSeconds(key string) int
}

// ─── MicService ───

// MicService is the arbitration facade.
//
// A retried action whose target state already holds succeeds without a
// write (cancel on none, raise on requested, grant on granted, deny and
// revoke on none). Nothing is retried automatically on ErrStaleState
// except the system-driven Leave.
type MicService interface {
	// Join records presence. Rejoining after a leave starts over at none
	// with the VIP snapshot of the moment; joining twice is a no-op.
	Join(ctx context.Context, roomID, userID string) (*models.Participant, error)

	// Leave releases the mic and marks the participant as gone. Not being
	// in the room is not an error.
	Leave(ctx context.Context, roomID, userID string) error

	// LeaveAll runs Leave for every room the user is present in.
	LeaveAll(ctx context.Context, userID string)

	// RaiseHand moves none → requested. Throttled by the limiter and
	// refused with ErrAccessDenied for banned users.
	RaiseHand(ctx context.Context, roomID, userID string) (*models.Participant, error)

	// CancelRequest moves requested → none.
	CancelRequest(ctx context.Context, roomID, userID string) (*models.Participant, error)

	// Grant, Deny and Revoke are authority actions on targetUserID:
	// 1. Resolve the actor's role for the room (host or above)
	// 2. Load the target; it must be present
	// 3. Validate the transition against the target's current status
	// 4. Compare-and-set; the speaker cap is checked in the same write
	Grant(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error)
	Deny(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error)
	Revoke(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error)

	// GrantNext grants the head of the room's queue (policy order).
	// ErrNotFound when nobody is waiting.
	GrantNext(ctx context.Context, roomID, actorID string) (*models.Participant, error)

	Queue(ctx context.Context, roomID string) (*models.MicQueue, error)
	Participants(ctx context.Context, roomID string) ([]models.Participant, error)
	Speakers(ctx context.Context, roomID string) ([]models.Participant, error)
	Role(ctx context.Context, roomID, userID string) (*models.RoleResponse, error)
}

type micService struct {
	rooms        RoomGetter
	agencies     AgencyGetter
	vips         VipGetter
	participants ParticipantStore
	perms        PermissionService
	speakers     SpeakerCache
	limiter      RaiseHandLimiter
}

// leaveAttempts bounds Leave's re-reads when a concurrent write wins.
const leaveAttempts = 3

// NewMicService creates the facade.
//
// Dependencies:
//   - rooms, agencies: room lookup and the agency's mic policy
//   - vips: priority snapshot taken at join
//   - participants: the compare-and-set store, which publishes every write
//   - perms: role resolution for authority actions
//   - speakers: cached granted list per room
//   - limiter: raise-hand throttle, may be nil (no throttling)
func NewMicService(
	rooms RoomGetter,
	agencies AgencyGetter,
	vips VipGetter,
	participants ParticipantStore,
	perms PermissionService,
	speakers SpeakerCache,
	limiter RaiseHandLimiter,
) MicService {
	return &micService{
		rooms:        rooms,
		agencies:     agencies,
		vips:         vips,
		participants: participants,
		perms:        perms,
		speakers:     speakers,
		limiter:      limiter,
	}
}

// ─── Presence ───

func (s *micService) Join(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}

	// no VIP row means default priority
	vip, err := s.vips.GetForUser(ctx, userID)
	if err != nil && !errors.Is(err, pkg.ErrNotFound) {
		return nil, err
	}

	p, joined, err := s.participants.Join(ctx, roomID, userID, vip)
	if err != nil {
		return nil, err
	}
	if joined {
		log.Printf("[mic] user %s joined room %s", userID, roomID)
	}
	return p, nil
}

// Leave releases the participant's mic (cancel when requested, the
// leave-room transition when granted) and then records the departure.
func (s *micService) Leave(ctx context.Context, roomID, userID string) error {
	var lastErr error
	for attempt := 0; attempt < leaveAttempts; attempt++ {
		lastErr = s.leaveOnce(ctx, roomID, userID)
		if !errors.Is(lastErr, pkg.ErrStaleState) {
			break
		}
	}
	return lastErr
}

func (s *micService) leaveOnce(ctx context.Context, roomID, userID string) error {
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.Present() {
		return nil
	}

	// Release the mic first, so listeners see the status change before
	// the departure.
	switch p.MicStatus {
	case models.MicStatusRequested:
		if _, err := s.apply(ctx, p, models.MicActionCancel); err != nil {
			return err
		}
	case models.MicStatusGranted:
		if _, err := s.apply(ctx, p, models.MicActionLeaveRoom); err != nil {
			return err
		}
	}

	if _, err := s.participants.MarkLeft(ctx, roomID, userID); err != nil {
		return err
	}

	log.Printf("[mic] user %s left room %s", userID, roomID)
	return nil
}

// LeaveAll leaves every room the user is present in. Used when the user's
// last connection drops; failures are logged.
func (s *micService) LeaveAll(ctx context.Context, userID string) {
	roomIDs, err := s.participants.ListRoomIDsByUser(ctx, userID)
	if err != nil {
		log.Printf("[mic] failed to list rooms of %s for cleanup: %v", userID, err)
		return
	}
	for _, roomID := range roomIDs {
		if err := s.Leave(ctx, roomID, userID); err != nil {
			log.Printf("[mic] failed to leave room %s for %s: %v", roomID, userID, err)
		}
	}
}

// ─── Participant actions ───

func (s *micService) RaiseHand(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := s.self(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if p.MicStatus == models.MicStatusRequested {
		return p, nil
	}

	// Only a fresh request counts against the limit.
	if s.limiter != nil && p.MicStatus == models.MicStatusNone {
		key := roomID + ":" + userID
		if !s.limiter.Allow(key) {
			return nil, &pkg.RetryAfterError{Seconds: s.limiter.RetryAfterSeconds(key)}
		}
	}

	return s.apply(ctx, p, models.MicActionRaiseHand)
}

func (s *micService) CancelRequest(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := s.self(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, p, models.MicActionCancel)
}

// self loads the caller's own participant row. Acting on yourself requires
// being in the room.
func (s *micService) self(ctx context.Context, roomID, userID string) (*models.Participant, error) {
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, pkg.ErrNotFound) || (err == nil && !p.Present()) {
		return nil, fmt.Errorf("%w: not in room", pkg.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ─── Authority actions ───

func (s *micService) Grant(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error) {
	return s.authorityAction(ctx, roomID, actorID, targetUserID, models.MicActionGrant)
}

func (s *micService) Deny(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error) {
	return s.authorityAction(ctx, roomID, actorID, targetUserID, models.MicActionDeny)
}

func (s *micService) Revoke(ctx context.Context, roomID, actorID, targetUserID string) (*models.Participant, error) {
	return s.authorityAction(ctx, roomID, actorID, targetUserID, models.MicActionRevoke)
}

func (s *micService) GrantNext(ctx context.Context, roomID, actorID string) (*models.Participant, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, room, models.MicActionGrant); err != nil {
		return nil, err
	}

	policy, err := s.policy(ctx, room)
	if err != nil {
		return nil, err
	}
	all, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// The head is granted as read: if it moved meanwhile the write fails
	// with ErrStaleState and the caller retries against the new queue.
	next, ok := NextInMicQueue(policy, all)
	if !ok {
		return nil, fmt.Errorf("%w: no pending mic requests", pkg.ErrNotFound)
	}
	return s.apply(ctx, &next, models.MicActionGrant)
}

func (s *micService) authorityAction(ctx context.Context, roomID, actorID, targetUserID string, action models.MicAction) (*models.Participant, error) {
	if targetUserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", pkg.ErrBadRequest)
	}

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, room, action); err != nil {
		return nil, err
	}

	// A participant who left is treated like one who never joined.
	target, err := s.participants.Get(ctx, roomID, targetUserID)
	if errors.Is(err, pkg.ErrNotFound) || (err == nil && !target.Present()) {
		return nil, fmt.Errorf("%w: participant not in room", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, target, action)
}

func (s *micService) authorize(ctx context.Context, actorID string, room *models.Room, action models.MicAction) error {
	role, err := s.perms.ResolveRole(ctx, actorID, room)
	if err != nil {
		return err
	}
	return s.perms.Authorize(role, action)
}

// apply fires action on p as read.
//
// Steps:
//  1. Target status already holds → return p unchanged, no write, no event
//  2. Look the transition up in the table → ErrInvalidTransition if absent
//  3. Compare-and-set on (status, version) → ErrStaleState if another
//     write got there first, ErrSlotsFull if a grant found the cap reached
//
// The repository publishes the committed row; nothing is broadcast here.
func (s *micService) apply(ctx context.Context, p *models.Participant, action models.MicAction) (*models.Participant, error) {
	if p.MicStatus == micActionTarget(action) {
		return p, nil
	}

	to, err := ApplyMicAction(p.MicStatus, action)
	if err != nil {
		return nil, err
	}

	updated, err := s.participants.CompareAndSetStatus(ctx, repository.StatusChange{
		RoomID:  p.RoomID,
		UserID:  p.UserID,
		From:    p.MicStatus,
		To:      to,
		Version: p.Version,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[mic] %s/%s: %s → %s (%s, v%d)", p.RoomID, p.UserID, p.MicStatus, updated.MicStatus, action, updated.Version)
	return updated, nil
}

// ─── Reads ───

func (s *micService) Queue(ctx context.Context, roomID string) (*models.MicQueue, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policy(ctx, room)
	if err != nil {
		return nil, err
	}
	all, err := s.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return &models.MicQueue{
		RoomID:  roomID,
		Policy:  policy,
		Entries: OrderMicQueue(policy, all),
	}, nil
}

func (s *micService) Participants(ctx context.Context, roomID string) ([]models.Participant, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	return s.participants.ListByRoom(ctx, roomID)
}

func (s *micService) Speakers(ctx context.Context, roomID string) ([]models.Participant, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	return s.speakers.Speakers(ctx, roomID)
}

func (s *micService) Role(ctx context.Context, roomID, userID string) (*models.RoleResponse, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	role, err := s.perms.ResolveRole(ctx, userID, room)
	if err != nil {
		return nil, err
	}
	return &models.RoleResponse{RoomID: roomID, Role: role, IsAuthority: role.IsAuthority()}, nil
}

// policy returns the room's effective mic policy. Rooms without an agency,
// or whose agency is gone, are free.
func (s *micService) policy(ctx context.Context, room *models.Room) (models.MicPolicy, error) {
	if !room.HasAgency() {
		return models.MicPolicyFree, nil
	}
	agency, err := s.agencies.GetByID(ctx, *room.AgencyID)
	if errors.Is(err, pkg.ErrNotFound) {
		return models.MicPolicyFree, nil
	}
	if err != nil {
		return "", err
	}
	return RoomMicPolicy(room, agency), nil
}
