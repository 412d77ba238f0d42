package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingForwarder struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (f *recordingForwarder) Forward(_ context.Context, c Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, c)
	return f.err
}

func participantChange(room, user string) Change {
	return Change{
		Table:   "participants",
		Op:      OpUpdate,
		Columns: map[string]string{"room_id": room, "user_id": user},
		Row:     json.RawMessage(`{}`),
	}
}

func TestFilter_Matches(t *testing.T) {
	c := participantChange("r1", "u1")

	assert.True(t, Filter{}.Matches(c))
	assert.True(t, Filter{Table: "participants"}.Matches(c))
	assert.True(t, Filter{Table: "participants", Eq: map[string]string{"room_id": "r1"}}.Matches(c))
	assert.False(t, Filter{Table: "rooms"}.Matches(c))
	assert.False(t, Filter{Eq: map[string]string{"room_id": "r2"}}.Matches(c))
	assert.False(t, Filter{Eq: map[string]string{"missing": "x"}}.Matches(c))
}

func TestFeed_PublishDispatchesMatching(t *testing.T) {
	feed := New()

	var room1, room2 []Change
	feed.Subscribe(Filter{Table: "participants", Eq: map[string]string{"room_id": "r1"}}, func(c Change) {
		room1 = append(room1, c)
	})
	feed.Subscribe(Filter{Table: "participants", Eq: map[string]string{"room_id": "r2"}}, func(c Change) {
		room2 = append(room2, c)
	})

	feed.Publish(context.Background(), participantChange("r1", "u1"))

	require.Len(t, room1, 1)
	assert.Empty(t, room2)
	assert.NotEmpty(t, room1[0].ID)
	assert.Equal(t, feed.Origin(), room1[0].Origin)
	assert.False(t, room1[0].CommittedAt.IsZero())
}

func TestFeed_UnsubscribeIsIdempotent(t *testing.T) {
	feed := New()

	calls := 0
	unsubscribe := feed.Subscribe(Filter{}, func(Change) { calls++ })
	assert.Equal(t, 1, feed.SubscriberCount())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, feed.SubscriberCount())

	feed.Publish(context.Background(), participantChange("r1", "u1"))
	assert.Equal(t, 0, calls)
}

func TestFeed_ForwardsLocalButNotDelivered(t *testing.T) {
	feed := New()
	fw := &recordingForwarder{}
	feed.SetForwarder(fw)

	delivered := 0
	feed.Subscribe(Filter{}, func(Change) { delivered++ })

	feed.Publish(context.Background(), participantChange("r1", "u1"))
	feed.Deliver(Change{ID: "remote", Origin: "other", Table: "participants"})

	assert.Equal(t, 2, delivered)
	require.Len(t, fw.changes, 1)
	assert.Equal(t, feed.Origin(), fw.changes[0].Origin)
}

func TestFeed_ForwardErrorDoesNotBlockLocal(t *testing.T) {
	feed := New()
	feed.SetForwarder(&recordingForwarder{err: errors.New("redis down")})

	delivered := 0
	feed.Subscribe(Filter{}, func(Change) { delivered++ })

	feed.Publish(context.Background(), participantChange("r1", "u1"))
	assert.Equal(t, 1, delivered)
}

func TestFeed_HandlerMayUnsubscribeItself(t *testing.T) {
	feed := New()

	calls := 0
	var unsubscribe func()
	unsubscribe = feed.Subscribe(Filter{}, func(Change) {
		calls++
		unsubscribe()
	})

	feed.Publish(context.Background(), participantChange("r1", "u1"))
	feed.Publish(context.Background(), participantChange("r1", "u1"))
	assert.Equal(t, 1, calls)
}

func TestRedisRelay_SkipsOwnOrigin(t *testing.T) {
	feed := New()
	relay := &RedisRelay{feed: feed}

	var got []Change
	feed.Subscribe(Filter{}, func(c Change) { got = append(got, c) })

	own, err := json.Marshal(Change{ID: "a", Origin: feed.Origin(), Table: "participants"})
	require.NoError(t, err)
	remote, err := json.Marshal(Change{ID: "b", Origin: "elsewhere", Table: "participants"})
	require.NoError(t, err)

	relay.handleMessage(string(own))
	relay.handleMessage(string(remote))
	relay.handleMessage("not json")

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
