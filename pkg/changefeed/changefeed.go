// Package changefeed is the store's change feed: every committed row write
// is published as a Change, and listeners subscribe with a Filter (table +
// column equality), the way a database's realtime feed works.
//
// Delivery is at-least-once. A Change keeps the same ID across redeliveries
// (e.g. when relayed between instances), so consumers that need
// exactly-once can deduplicate on it.
//
// Publish dispatches to local subscribers synchronously on the writer's
// goroutine, in call order, then hands the change to the Forwarder (if any)
// so other server instances see it too. Deliver is the relay's ingress: it
// dispatches locally without forwarding again.
//
// This package is a leaf: it does not know about participants or mic
// state; it carries rows as JSON.
package changefeed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one row-level change.
type Change struct {
	ID          string            `json:"id"`
	Origin      string            `json:"origin"` // instance that committed the write
	Table       string            `json:"table"`
	Op          Op                `json:"op"`
	Columns     map[string]string `json:"columns"` // key columns, used by filters
	Row         json.RawMessage   `json:"row"`
	CommittedAt time.Time         `json:"committed_at"`
}

// Filter selects changes by table and exact column values. An empty Table
// matches every table; an empty Eq matches every row.
type Filter struct {
	Table string
	Eq    map[string]string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	for col, want := range f.Eq {
		if c.Columns[col] != want {
			return false
		}
	}
	return true
}

// Handler receives matching changes.
type Handler func(Change)

// Forwarder ships locally committed changes to other instances.
type Forwarder interface {
	Forward(ctx context.Context, c Change) error
}

type subscription struct {
	filter  Filter
	handler Handler
}

// Feed is the in-process change feed.
type Feed struct {
	origin string

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	forwarder Forwarder
}

// New creates a feed with a fresh origin ID.
func New() *Feed {
	return &Feed{
		origin: uuid.NewString(),
		subs:   make(map[uint64]*subscription),
	}
}

// Origin identifies this instance in relayed changes.
func (f *Feed) Origin() string {
	return f.origin
}

// SetForwarder installs the cross-instance forwarder. Call before serving.
func (f *Feed) SetForwarder(fw Forwarder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarder = fw
}

// Subscribe registers h for changes matching filter. The returned function
// removes the subscription; calling it more than once is harmless.
func (f *Feed) Subscribe(filter Filter, h Handler) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = &subscription{filter: filter, handler: h}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish stamps c (ID, origin, commit time when unset), dispatches it to
// local subscribers and forwards it. A forwarding failure is logged, not
// returned: the write is already committed and local listeners were served.
func (f *Feed) Publish(ctx context.Context, c Change) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Origin == "" {
		c.Origin = f.origin
	}
	if c.CommittedAt.IsZero() {
		c.CommittedAt = time.Now().UTC()
	}

	f.dispatch(c)

	f.mu.RLock()
	fw := f.forwarder
	f.mu.RUnlock()

	if fw != nil {
		if err := fw.Forward(ctx, c); err != nil {
			log.Printf("[feed] failed to forward change %s (%s): %v", c.ID, c.Table, err)
		}
	}
}

// Deliver dispatches a change received from another instance.
func (f *Feed) Deliver(c Change) {
	f.dispatch(c)
}

// dispatch calls every matching handler outside the lock, so handlers may
// subscribe or unsubscribe without deadlocking.
func (f *Feed) dispatch(c Change) {
	f.mu.RLock()
	matched := make([]Handler, 0, len(f.subs))
	for _, s := range f.subs {
		if s.filter.Matches(c) {
			matched = append(matched, s.handler)
		}
	}
	f.mu.RUnlock()

	for _, h := range matched {
		h(c)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
