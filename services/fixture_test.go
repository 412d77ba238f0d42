package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

// micFixture wires the mic stack on a real SQLite file.
type micFixture struct {
	db           *database.DB
	feed         *changefeed.Feed
	bus          MicBus
	rooms        repository.RoomRepository
	agencies     repository.AgencyRepository
	bans         repository.RoomBanRepository
	participants repository.ParticipantRepository
	perms        PermissionService
	speakers     SpeakerCache
	mic          MicService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	limiter      RaiseHandLimiter
	participants func(repository.ParticipantRepository) ParticipantStore
}

func withLimiter(l RaiseHandLimiter) fixtureOption {
	return func(c *fixtureConfig) { c.limiter = l }
}

func withParticipantStore(wrap func(repository.ParticipantRepository) ParticipantStore) fixtureOption {
	return func(c *fixtureConfig) { c.participants = wrap }
}

func newMicFixture(t *testing.T, opts ...fixtureOption) *micFixture {
	t.Helper()

	cfg := fixtureConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	db, err := database.New(filepath.Join(t.TempDir(), "mic.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &micFixture{db: db, feed: changefeed.New()}
	f.bus = NewMicBus(f.feed)
	f.rooms = repository.NewSQLiteRoomRepo(db.Conn)
	f.agencies = repository.NewSQLiteAgencyRepo(db.Conn, f.feed)
	f.bans = repository.NewSQLiteRoomBanRepo(db.Conn)
	f.participants = repository.NewSQLiteParticipantRepo(db.Conn, f.feed)
	f.perms = NewPermissionService(f.agencies, time.Minute)
	f.speakers = NewSpeakerCache(f.participants, f.bus, 16)
	t.Cleanup(f.speakers.Close)
	t.Cleanup(f.bus.Close)

	var store ParticipantStore = f.participants
	if cfg.participants != nil {
		store = cfg.participants(f.participants)
	}
	f.mic = NewMicService(f.rooms, f.agencies, repository.NewSQLiteVipRepo(db.Conn), store, f.perms, f.speakers, cfg.limiter)
	return f
}

// agencyRoom creates an agency owned by "boss" with a host "host" and a
// member "member", and a queue-policy room in it owned by "room-owner".
func (f *micFixture) agencyRoom(t *testing.T, maxSpeakers int) *models.Room {
	t.Helper()
	ctx := context.Background()

	agency := &models.Agency{Name: "Stars", OwnerID: "boss", DefaultMicPolicy: models.MicPolicyQueue, ThemeJSON: "{}"}
	require.NoError(t, f.agencies.Create(ctx, agency))
	require.NoError(t, f.agencies.SetMembership(ctx, &models.Membership{AgencyID: agency.ID, UserID: "host", Role: models.RoleHost}))
	require.NoError(t, f.agencies.SetMembership(ctx, &models.Membership{AgencyID: agency.ID, UserID: "member", Role: models.RoleMember}))

	room := &models.Room{Name: "Evening", OwnerID: "room-owner", AgencyID: &agency.ID, MaxSpeakers: maxSpeakers}
	require.NoError(t, f.rooms.Create(ctx, room))
	return room
}

// setVip gives userID the seeded VIP level levelID (bronze, silver, gold).
func (f *micFixture) setVip(t *testing.T, userID, levelID string) {
	t.Helper()
	_, err := f.db.Conn.Exec(`INSERT INTO user_vip_levels (user_id, vip_level_id) VALUES (?, ?)`, userID, levelID)
	require.NoError(t, err)
}

func (f *micFixture) join(t *testing.T, roomID string, userIDs ...string) {
	t.Helper()
	for _, u := range userIDs {
		_, err := f.mic.Join(context.Background(), roomID, u)
		require.NoError(t, err)
	}
}

func (f *micFixture) status(t *testing.T, roomID, userID string) models.MicStatus {
	t.Helper()
	p, err := f.participants.Get(context.Background(), roomID, userID)
	require.NoError(t, err)
	return p.MicStatus
}

// eventRecorder collects bus events.
type eventRecorder struct {
	mu     sync.Mutex
	events []models.MicEvent
}

func (r *eventRecorder) record(evt models.MicEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) snapshot() []models.MicEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MicEvent(nil), r.events...)
}

func (r *eventRecorder) statuses() []models.MicStatus {
	events := r.snapshot()
	out := make([]models.MicStatus, len(events))
	for i, e := range events {
		out[i] = e.MicStatus
	}
	return out
}
