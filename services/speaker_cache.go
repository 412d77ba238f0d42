package services

import (
	"context"
	"sync"
	"time"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/cache"
)

// SpeakerLister loads the granted participants of a room.
type SpeakerLister interface {
	ListByStatus(ctx context.Context, roomID string, status models.MicStatus) ([]models.Participant, error)
}

// SpeakerCache answers "who is speaking in this room" from a bounded,
// per-room cache. Any mic event of a room drops that room's entry.
type SpeakerCache interface {
	Speakers(ctx context.Context, roomID string) ([]models.Participant, error)
	Close()
}

type speakerCache struct {
	lister  SpeakerLister
	entries *cache.TTLCache[string, []models.Participant]

	// generation per room, bumped on invalidation; a load that raced an
	// invalidation is not stored
	genMu sync.Mutex
	gens  map[string]uint64

	dispose func()
}

// speakerCacheTTL caps how long an entry can live even without events
// (e.g. when a relay message was lost).
const speakerCacheTTL = time.Minute

// NewSpeakerCache creates the cache, holding at most maxRooms rooms, and
// subscribes it to bus for invalidation.
func NewSpeakerCache(lister SpeakerLister, bus MicBus, maxRooms int) SpeakerCache {
	c := &speakerCache{
		lister:  lister,
		entries: cache.New[string, []models.Participant](speakerCacheTTL, speakerCacheTTL/2, maxRooms),
		gens:    make(map[string]uint64),
	}
	c.dispose = bus.SubscribeAll(func(evt models.MicEvent) {
		c.invalidate(evt.RoomID)
	})
	return c
}

// Speakers serves from the cache, else loads the granted rows. The
// generation is read before the load: an event that lands during it bumps
// the generation and the stale result is returned but not stored.
func (c *speakerCache) Speakers(ctx context.Context, roomID string) ([]models.Participant, error) {
	if speakers, ok := c.entries.Get(roomID); ok {
		return copyParticipants(speakers), nil
	}

	gen := c.generation(roomID)
	speakers, err := c.lister.ListByStatus(ctx, roomID, models.MicStatusGranted)
	if err != nil {
		return nil, err
	}

	c.genMu.Lock()
	if c.gens[roomID] == gen {
		c.entries.Set(roomID, speakers)
	}
	c.genMu.Unlock()

	return copyParticipants(speakers), nil
}

// copyParticipants hands callers their own slice, never nil.
func copyParticipants(ps []models.Participant) []models.Participant {
	out := make([]models.Participant, len(ps))
	copy(out, ps)
	return out
}

func (c *speakerCache) generation(roomID string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[roomID]
}

func (c *speakerCache) invalidate(roomID string) {
	c.genMu.Lock()
	c.gens[roomID]++
	c.entries.Delete(roomID)
	c.genMu.Unlock()
}

func (c *speakerCache) Close() {
	c.dispose()
	c.entries.Close()
}
