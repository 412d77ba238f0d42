package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
)

// PublishPermissionUpdater changes a live participant's publish permission
// in the voice transport.
type PublishPermissionUpdater interface {
	SetCanPublish(ctx context.Context, roomID, userID string, canPublish bool) error
}

// livekitPermissionUpdater drives LiveKit's RoomService API.
type livekitPermissionUpdater struct {
	client *lksdk.RoomServiceClient
}

// NewLiveKitPermissionUpdater creates an updater for the configured server.
func NewLiveKitPermissionUpdater(cfg config.LiveKitConfig) PublishPermissionUpdater {
	return &livekitPermissionUpdater{
		client: lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}
}

func (u *livekitPermissionUpdater) SetCanPublish(ctx context.Context, roomID, userID string, canPublish bool) error {
	_, err := u.client.UpdateParticipant(ctx, &livekit.UpdateParticipantRequest{
		Room:     roomID,
		Identity: userID,
		Permission: &livekit.ParticipantPermission{
			CanSubscribe:   true,
			CanPublish:     canPublish,
			CanPublishData: true,
		},
	})
	if err != nil {
		return fmt.Errorf("livekit update participant: %w", err)
	}
	return nil
}

// VoiceTransportSync mirrors mic grants into the voice transport: a grant
// lets the participant publish audio, anything else takes it away.
//
// Bus callbacks run on the writer's goroutine, so they only record the
// newest event per participant and wake the worker. Nothing is dropped
// while the transport is slow: older versions for the same participant
// are superseded and the worker applies the latest one.
type VoiceTransportSync struct {
	updater PublishPermissionUpdater
	timeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]pendingPermission
	signal    chan struct{}

	mu      sync.Mutex
	applied map[string]bool // participant → last CanPublish sent

	dispose func()
}

// pendingPermission is the newest event waiting for a participant.
// sawGrant survives coalescing so a grant that was superseded before the
// worker reached it still gets taken back.
type pendingPermission struct {
	evt      models.MicEvent
	sawGrant bool
}

// NewVoiceTransportSync subscribes to every mic transition on bus.
func NewVoiceTransportSync(bus MicBus, updater PublishPermissionUpdater) *VoiceTransportSync {
	s := &VoiceTransportSync{
		updater: updater,
		timeout: 5 * time.Second,
		pending: make(map[string]pendingPermission),
		signal:  make(chan struct{}, 1),
		applied: make(map[string]bool),
	}
	s.dispose = bus.SubscribeAll(s.enqueue)
	return s
}

func (s *VoiceTransportSync) enqueue(evt models.MicEvent) {
	key := participantKey(evt.RoomID, evt.UserID)
	granted := evt.Present && evt.MicStatus == models.MicStatusGranted

	s.pendingMu.Lock()
	cur, ok := s.pending[key]
	if ok && evt.Version <= cur.evt.Version {
		s.pendingMu.Unlock()
		return
	}
	s.pending[key] = pendingPermission{evt: evt, sawGrant: cur.sawGrant || granted}
	s.pendingMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *VoiceTransportSync) takePending() []pendingPermission {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	batch := make([]pendingPermission, 0, len(s.pending))
	for _, p := range s.pending {
		batch = append(batch, p)
	}
	s.pending = make(map[string]pendingPermission)
	return batch
}

// Run applies pending events until ctx is cancelled. Started with `go voiceSync.Run(ctx)`.
func (s *VoiceTransportSync) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			for _, p := range s.takePending() {
				if ctx.Err() != nil {
					return
				}
				s.apply(ctx, p)
			}
		}
	}
}

func (s *VoiceTransportSync) apply(ctx context.Context, p pendingPermission) {
	evt := p.evt
	key := participantKey(evt.RoomID, evt.UserID)
	canPublish := evt.Present && evt.MicStatus == models.MicStatusGranted

	s.mu.Lock()
	last, known := s.applied[key]
	s.mu.Unlock()

	var needed bool
	switch {
	case canPublish:
		needed = !known || !last
	case known:
		needed = last
	default:
		// never granted: LiveKit already has it right from the token
		needed = p.sawGrant
	}
	if !needed {
		if !evt.Present {
			s.forget(key)
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.updater.SetCanPublish(callCtx, evt.RoomID, evt.UserID, canPublish); err != nil {
		// not connected to the SFU: the token it gets will carry the permission
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			s.remember(key, evt.Present, canPublish)
			return
		}
		log.Printf("[livekit] failed to set can_publish=%t for %s in %s: %v", canPublish, evt.UserID, evt.RoomID, err)
		return
	}

	s.remember(key, evt.Present, canPublish)
	log.Printf("[livekit] %s in %s can_publish=%t", evt.UserID, evt.RoomID, canPublish)
}

func (s *VoiceTransportSync) remember(key string, present, canPublish bool) {
	if !present {
		s.forget(key)
		return
	}
	s.mu.Lock()
	s.applied[key] = canPublish
	s.mu.Unlock()
}

func (s *VoiceTransportSync) forget(key string) {
	s.mu.Lock()
	delete(s.applied, key)
	s.mu.Unlock()
}

// Stop unsubscribes from the bus. Pending events are discarded once Run's
// context ends.
func (s *VoiceTransportSync) Stop() {
	s.dispose()
}
