package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

func participantChange(t *testing.T, roomID, userID string, status models.MicStatus, version int64) changefeed.Change {
	t.Helper()
	row, err := json.Marshal(models.Participant{
		RoomID:    roomID,
		UserID:    userID,
		MicStatus: status,
		Version:   version,
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return changefeed.Change{
		Table:   repository.ParticipantsTable,
		Op:      changefeed.OpUpdate,
		Columns: map[string]string{"room_id": roomID, "user_id": userID},
		Row:     row,
	}
}

func TestMicBus_Scopes(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()
	ctx := context.Background()

	var self, room, all eventRecorder
	bus.SubscribeSelf("r1", "u1", self.record)
	bus.SubscribeRoom("r1", room.record)
	bus.SubscribeAll(all.record)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusRequested, 2))
	feed.Publish(ctx, participantChange(t, "r1", "u2", models.MicStatusRequested, 2))
	feed.Publish(ctx, participantChange(t, "r2", "u1", models.MicStatusRequested, 2))

	assert.Len(t, self.snapshot(), 1)
	assert.Len(t, room.snapshot(), 2)
	assert.Len(t, all.snapshot(), 3)

	evt := self.snapshot()[0]
	assert.Equal(t, "r1", evt.RoomID)
	assert.Equal(t, "u1", evt.UserID)
	assert.Equal(t, models.MicStatusRequested, evt.MicStatus)
	assert.True(t, evt.Present)
	assert.True(t, evt.HandRaised())
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, int64(2), evt.Version)
}

func TestMicBus_DropsDuplicateAndOlderVersions(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()
	ctx := context.Background()

	var rec eventRecorder
	bus.SubscribeSelf("r1", "u1", rec.record)

	granted := participantChange(t, "r1", "u1", models.MicStatusGranted, 3)
	feed.Publish(ctx, granted)
	feed.Deliver(granted) // redelivery, e.g. via the relay
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusRequested, 2))
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusNone, 4))

	assert.Equal(t, []models.MicStatus{models.MicStatusGranted, models.MicStatusNone}, rec.statuses())
}

func TestMicBus_IgnoresOtherTablesAndBadRows(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	var rec eventRecorder
	bus.SubscribeAll(rec.record)

	feed.Publish(context.Background(), changefeed.Change{Table: "rooms", Row: json.RawMessage(`{"id":"r1"}`)})
	feed.Publish(context.Background(), changefeed.Change{Table: repository.ParticipantsTable, Row: json.RawMessage(`not json`)})

	assert.Empty(t, rec.snapshot())
}

func TestMicBus_DisposeIsIdempotent(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()
	ctx := context.Background()

	var rec eventRecorder
	dispose := bus.SubscribeRoom("r1", rec.record)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusRequested, 2))
	dispose()
	dispose()
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 3))

	assert.Len(t, rec.snapshot(), 1)
}

func TestMicBus_DisposeWaitsForInFlightDelivery(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		finished bool
	)
	dispose := bus.SubscribeAll(func(models.MicEvent) {
		close(entered)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
	})

	go feed.Publish(context.Background(), participantChange(t, "r1", "u1", models.MicStatusRequested, 2))
	<-entered

	disposed := make(chan struct{})
	go func() {
		dispose()
		close(disposed)
	}()

	select {
	case <-disposed:
		t.Fatal("dispose returned while the listener was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-disposed

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}

func TestMicBus_CloseDetachesFromFeed(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	assert.Equal(t, 1, feed.SubscriberCount())

	bus.Close()
	assert.Zero(t, feed.SubscriberCount())
}
