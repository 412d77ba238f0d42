package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

type participantMap map[string]*models.Participant

func (m participantMap) Get(_ context.Context, roomID, userID string) (*models.Participant, error) {
	if p, ok := m[participantKey(roomID, userID)]; ok {
		return p, nil
	}
	return nil, pkg.ErrNotFound
}

var testLiveKit = config.LiveKitConfig{URL: "ws://localhost:7880", APIKey: "devkey", APISecret: "devsecret-devsecret-devsecret-00"}

func videoGrant(t *testing.T, token string) map[string]any {
	t.Helper()
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	video, ok := claims["video"].(map[string]any)
	require.True(t, ok, "token carries a video grant")
	return video
}

func TestVoiceService_GrantMirrorsMicStatus(t *testing.T) {
	left := time.Now()
	participants := participantMap{
		participantKey("r1", "speaker"):  {RoomID: "r1", UserID: "speaker", MicStatus: models.MicStatusGranted},
		participantKey("r1", "listener"): {RoomID: "r1", UserID: "listener", MicStatus: models.MicStatusRequested},
		participantKey("r1", "gone"):     {RoomID: "r1", UserID: "gone", LeftAt: &left},
	}
	voice := NewVoiceService(participants, testLiveKit)
	ctx := context.Background()

	resp, err := voice.GenerateToken(ctx, "r1", &models.Identity{UserID: "speaker", Username: "Sam"})
	require.NoError(t, err)
	assert.True(t, resp.CanPublish)
	assert.Equal(t, "r1", resp.RoomID)
	assert.Equal(t, testLiveKit.URL, resp.URL)
	grant := videoGrant(t, resp.Token)
	assert.Equal(t, true, grant["canPublish"])
	assert.Equal(t, "r1", grant["room"])

	resp, err = voice.GenerateToken(ctx, "r1", &models.Identity{UserID: "listener"})
	require.NoError(t, err)
	assert.False(t, resp.CanPublish)
	assert.Equal(t, false, videoGrant(t, resp.Token)["canPublish"])

	_, err = voice.GenerateToken(ctx, "r1", &models.Identity{UserID: "gone"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
	_, err = voice.GenerateToken(ctx, "r1", &models.Identity{UserID: "stranger"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)
}

func TestVoiceService_Disabled(t *testing.T) {
	voice := NewVoiceService(participantMap{}, config.LiveKitConfig{})

	_, err := voice.GenerateToken(context.Background(), "r1", &models.Identity{UserID: "u1"})
	assert.ErrorIs(t, err, pkg.ErrTransient)
}
