package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

// MicListener receives mic events.
type MicListener = func(models.MicEvent)

// MicBus turns participant row changes from the change feed into
// MicEvents and fans them out.
//
// Every subscription returns a dispose function. Dispose is idempotent and
// synchronous: when it returns, the listener is not running and will not
// be called again. A listener must not dispose its own subscription from
// inside its callback (it would wait on itself); hand that off to another
// goroutine instead.
//
// Listeners run on the goroutine that committed the write, so they must
// not block. The hub and the voice sync only enqueue.
type MicBus interface {
	// SubscribeSelf delivers transitions of one participant.
	SubscribeSelf(roomID, userID string, fn MicListener) (dispose func())

	// SubscribeRoom delivers transitions of every participant of a room.
	SubscribeRoom(roomID string, fn MicListener) (dispose func())

	// SubscribeAll delivers every transition (cache invalidation, voice
	// permission sync).
	SubscribeAll(fn MicListener) (dispose func())

	// Close detaches the bus from the feed.
	Close()
}

// micListener is one registration. mu is held for the whole callback, so
// dispose (which takes it) waits for an in-flight delivery to finish.
type micListener struct {
	mu     sync.Mutex
	active bool
	fn     MicListener
}

func (l *micListener) deliver(evt models.MicEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		l.fn(evt)
	}
}

func (l *micListener) deactivate() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
}

type micBus struct {
	mu     sync.RWMutex
	nextID uint64
	self   map[string]map[uint64]*micListener // "room\x00user" → listeners
	rooms  map[string]map[uint64]*micListener // room → listeners
	all    map[uint64]*micListener

	// last delivered version per participant; older or repeated changes
	// are dropped. Entries expire long after any redelivery could arrive.
	seenMu sync.Mutex
	seen   *gocache.Cache

	unsubscribe func()
}

// NewMicBus subscribes to the participants table of feed.
func NewMicBus(feed *changefeed.Feed) MicBus {
	b := &micBus{
		self:  make(map[string]map[uint64]*micListener),
		rooms: make(map[string]map[uint64]*micListener),
		all:   make(map[uint64]*micListener),
		seen:  gocache.New(30*time.Minute, 10*time.Minute),
	}
	b.unsubscribe = feed.Subscribe(changefeed.Filter{Table: repository.ParticipantsTable}, b.onChange)
	return b
}

func participantKey(roomID, userID string) string {
	return roomID + "\x00" + userID
}

func (b *micBus) onChange(c changefeed.Change) {
	var p models.Participant
	if err := json.Unmarshal(c.Row, &p); err != nil {
		log.Printf("[mic] dropping undecodable change %s: %v", c.ID, err)
		return
	}

	key := participantKey(p.RoomID, p.UserID)
	if !b.advance(key, p.Version) {
		return
	}

	evt := models.MicEvent{
		ID:         c.ID,
		RoomID:     p.RoomID,
		UserID:     p.UserID,
		MicStatus:  p.MicStatus,
		Present:    p.Present(),
		Version:    p.Version,
		OccurredAt: p.UpdatedAt,
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = c.CommittedAt
	}

	b.mu.RLock()
	targets := make([]*micListener, 0, len(b.self[key])+len(b.rooms[p.RoomID])+len(b.all))
	for _, l := range b.self[key] {
		targets = append(targets, l)
	}
	for _, l := range b.rooms[p.RoomID] {
		targets = append(targets, l)
	}
	for _, l := range b.all {
		targets = append(targets, l)
	}
	b.mu.RUnlock()

	for _, l := range targets {
		l.deliver(evt)
	}
}

// advance records version as delivered for key. False when an equal or
// newer version was already delivered.
func (b *micBus) advance(key string, version int64) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	if v, ok := b.seen.Get(key); ok {
		if last, ok := v.(int64); ok && version <= last {
			return false
		}
	}
	b.seen.Set(key, version, gocache.DefaultExpiration)
	return true
}

func (b *micBus) register(group map[string]map[uint64]*micListener, groupKey string, fn MicListener) func() {
	l := &micListener{active: true, fn: fn}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if group == nil {
		b.all[id] = l
	} else {
		if group[groupKey] == nil {
			group[groupKey] = make(map[uint64]*micListener)
		}
		group[groupKey][id] = l
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if group == nil {
				delete(b.all, id)
			} else if listeners, ok := group[groupKey]; ok {
				delete(listeners, id)
				if len(listeners) == 0 {
					delete(group, groupKey)
				}
			}
			b.mu.Unlock()

			l.deactivate()
		})
	}
}

func (b *micBus) SubscribeSelf(roomID, userID string, fn MicListener) func() {
	return b.register(b.self, participantKey(roomID, userID), fn)
}

func (b *micBus) SubscribeRoom(roomID string, fn MicListener) func() {
	return b.register(b.rooms, roomID, fn)
}

func (b *micBus) SubscribeAll(fn MicListener) func() {
	return b.register(nil, "", fn)
}

func (b *micBus) Close() {
	b.unsubscribe()
}
