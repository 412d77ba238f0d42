package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
)

type permissionCall struct {
	RoomID     string
	UserID     string
	CanPublish bool
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []permissionCall
	err   error
}

func (u *fakeUpdater) SetCanPublish(_ context.Context, roomID, userID string, canPublish bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, permissionCall{roomID, userID, canPublish})
	return u.err
}

func (u *fakeUpdater) snapshot() []permissionCall {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]permissionCall(nil), u.calls...)
}

func TestVoiceTransportSync_MirrorsGrants(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	updater := &fakeUpdater{}
	voiceSync := NewVoiceTransportSync(bus, updater)
	defer voiceSync.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voiceSync.Run(ctx)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusRequested, 2)) // never granted: skipped
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 3))
	require.Eventually(t, func() bool { return len(updater.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusNone, 4))

	want := []permissionCall{
		{"r1", "u1", true},
		{"r1", "u1", false},
	}
	require.Eventually(t, func() bool { return len(updater.snapshot()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, updater.snapshot())
}

func TestVoiceTransportSync_FailedUpdateIsNotRemembered(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	updater := &fakeUpdater{err: errors.New("twirp error unavailable")}
	voiceSync := NewVoiceTransportSync(bus, updater)
	defer voiceSync.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voiceSync.Run(ctx)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 2))
	require.Eventually(t, func() bool { return len(updater.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	// the grant never landed, so there is nothing to take back
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusNone, 3))
	assert.Never(t, func() bool { return len(updater.snapshot()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 4))
	require.Eventually(t, func() bool { return len(updater.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, updater.snapshot()[1].CanPublish)
}

func TestVoiceTransportSync_StopUnsubscribes(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	updater := &fakeUpdater{}
	voiceSync := NewVoiceTransportSync(bus, updater)
	voiceSync.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voiceSync.Run(ctx)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 2))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, updater.snapshot())
}

// gatedUpdater holds every call until release is closed.
type gatedUpdater struct {
	fakeUpdater
	entered chan struct{}
	release chan struct{}
}

func (u *gatedUpdater) SetCanPublish(ctx context.Context, roomID, userID string, canPublish bool) error {
	select {
	case u.entered <- struct{}{}:
	default:
	}
	<-u.release
	return u.fakeUpdater.SetCanPublish(ctx, roomID, userID, canPublish)
}

func callsFor(calls []permissionCall, userID string) []permissionCall {
	var out []permissionCall
	for _, c := range calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func TestVoiceTransportSync_RevokeSurvivesBacklog(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	updater := &gatedUpdater{entered: make(chan struct{}, 1), release: make(chan struct{})}
	voiceSync := NewVoiceTransportSync(bus, updater)
	defer voiceSync.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voiceSync.Run(ctx)

	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 2))
	select {
	case <-updater.entered:
	case <-time.After(time.Second):
		t.Fatal("grant never reached the updater")
	}

	// the worker is stuck on u1's grant while the room churns
	for i := 0; i < 500; i++ {
		user := fmt.Sprintf("listener-%d", i)
		feed.Publish(ctx, participantChange(t, "r1", user, models.MicStatusRequested, 2))
		feed.Publish(ctx, participantChange(t, "r1", user, models.MicStatusNone, 3))
	}
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusNone, 3))

	close(updater.release)

	want := []permissionCall{
		{"r1", "u1", true},
		{"r1", "u1", false},
	}
	require.Eventually(t, func() bool {
		return len(callsFor(updater.snapshot(), "u1")) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, callsFor(updater.snapshot(), "u1"))
	assert.Len(t, updater.snapshot(), len(want), "listeners that never held the mic need no update")
}

func TestVoiceTransportSync_SupersededGrantIsTakenBack(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	updater := &gatedUpdater{entered: make(chan struct{}, 1), release: make(chan struct{})}
	voiceSync := NewVoiceTransportSync(bus, updater)
	defer voiceSync.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go voiceSync.Run(ctx)

	feed.Publish(ctx, participantChange(t, "r1", "busy", models.MicStatusGranted, 2))
	select {
	case <-updater.entered:
	case <-time.After(time.Second):
		t.Fatal("grant never reached the updater")
	}

	// u1 is granted and revoked while the worker is busy; only the revoke remains
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusGranted, 2))
	feed.Publish(ctx, participantChange(t, "r1", "u1", models.MicStatusNone, 3))
	close(updater.release)

	require.Eventually(t, func() bool { return len(callsFor(updater.snapshot(), "u1")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []permissionCall{{"r1", "u1", false}}, callsFor(updater.snapshot(), "u1"))
}

func TestVoiceTransportSync_StaleVersionIgnored(t *testing.T) {
	feed := changefeed.New()
	bus := NewMicBus(feed)
	defer bus.Close()

	voiceSync := NewVoiceTransportSync(bus, &fakeUpdater{})
	defer voiceSync.Stop()

	voiceSync.enqueue(models.MicEvent{RoomID: "r1", UserID: "u1", MicStatus: models.MicStatusNone, Present: true, Version: 5})
	voiceSync.enqueue(models.MicEvent{RoomID: "r1", UserID: "u1", MicStatus: models.MicStatusGranted, Present: true, Version: 4})

	batch := voiceSync.takePending()
	require.Len(t, batch, 1)
	assert.Equal(t, int64(5), batch[0].evt.Version)
	assert.False(t, batch[0].sawGrant)
}
