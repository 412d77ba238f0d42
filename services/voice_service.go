package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// ParticipantGetter loads one participant row.
type ParticipantGetter interface {
	Get(ctx context.Context, roomID, userID string) (*models.Participant, error)
}

// VoiceService hands out LiveKit tokens. The LiveKit room name is the room
// ID and the identity is the user ID.
type VoiceService interface {
	// GenerateToken issues a token for a participant present in the room.
	// CanPublish is true only while their mic status is granted; later
	// changes reach LiveKit through VoiceTransportSync.
	GenerateToken(ctx context.Context, roomID string, identity *models.Identity) (*models.VoiceTokenResponse, error)
}

type voiceService struct {
	participants ParticipantGetter
	livekitCfg   config.LiveKitConfig
}

// voiceTokenTTL: LiveKit keeps the session alive after join, the token only
// needs to outlive the connect.
const voiceTokenTTL = 6 * time.Hour

// NewVoiceService creates the voice token service.
func NewVoiceService(participants ParticipantGetter, livekitCfg config.LiveKitConfig) VoiceService {
	return &voiceService{participants: participants, livekitCfg: livekitCfg}
}

func (s *voiceService) GenerateToken(ctx context.Context, roomID string, identity *models.Identity) (*models.VoiceTokenResponse, error) {
	if !s.livekitCfg.Enabled() {
		return nil, fmt.Errorf("%w: voice transport is not configured", pkg.ErrTransient)
	}

	p, err := s.participants.Get(ctx, roomID, identity.UserID)
	if errors.Is(err, pkg.ErrNotFound) || (err == nil && !p.Present()) {
		return nil, fmt.Errorf("%w: join the room first", pkg.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	canPublish := p.MicStatus == models.MicStatusGranted
	canSubscribe := true
	canPublishData := true

	at := auth.NewAccessToken(s.livekitCfg.APIKey, s.livekitCfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomID,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}
	at.AddGrant(grant).
		SetIdentity(identity.UserID).
		SetName(identity.Username).
		SetValidFor(voiceTokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to generate livekit token: %w", err)
	}

	return &models.VoiceTokenResponse{
		Token:      token,
		URL:        s.livekitCfg.URL,
		RoomID:     roomID,
		CanPublish: canPublish,
	}, nil
}
