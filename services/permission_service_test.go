package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
)

type fakeAgencies struct {
	agencies         map[string]*models.Agency
	members          map[string]models.Role // agency:user
	membershipLookup int
	err              error
}

func (f *fakeAgencies) GetByID(_ context.Context, id string) (*models.Agency, error) {
	if a, ok := f.agencies[id]; ok {
		return a, nil
	}
	return nil, pkg.ErrNotFound
}

func (f *fakeAgencies) GetMembership(_ context.Context, agencyID, userID string) (*models.Membership, error) {
	f.membershipLookup++
	if f.err != nil {
		return nil, f.err
	}
	if role, ok := f.members[agencyID+":"+userID]; ok {
		return &models.Membership{AgencyID: agencyID, UserID: userID, Role: role}, nil
	}
	return nil, pkg.ErrNotFound
}

func newPermFixture() (*fakeAgencies, *models.Room) {
	agencyID := "ag"
	f := &fakeAgencies{
		agencies: map[string]*models.Agency{
			"ag": {ID: "ag", OwnerID: "agency-owner", DefaultMicPolicy: models.MicPolicyQueue},
		},
		members: map[string]models.Role{
			"ag:host":    models.RoleHost,
			"ag:manager": models.RoleManager,
			"ag:member":  models.RoleMember,
			// agency owner also holds a host membership: ownership wins
			"ag:agency-owner": models.RoleHost,
		},
	}
	room := &models.Room{ID: "r1", OwnerID: "room-owner", AgencyID: &agencyID}
	return f, room
}

func TestResolveRole(t *testing.T) {
	f, room := newPermFixture()
	perms := NewPermissionService(f, time.Minute)
	ctx := context.Background()

	cases := map[string]models.Role{
		"room-owner":   models.RoleOwner,
		"agency-owner": models.RoleOwner,
		"manager":      models.RoleManager,
		"host":         models.RoleHost,
		"member":       models.RoleMember,
		"stranger":     models.RoleNone,
		"":             models.RoleNone,
	}
	for user, want := range cases {
		got, err := perms.ResolveRole(ctx, user, room)
		require.NoError(t, err)
		assert.Equal(t, want, got, user)
	}
}

func TestResolveRole_RoomWithoutAgency(t *testing.T) {
	f, _ := newPermFixture()
	perms := NewPermissionService(f, time.Minute)

	room := &models.Room{ID: "r2", OwnerID: "room-owner"}
	role, err := perms.ResolveRole(context.Background(), "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, role)
	assert.Zero(t, f.membershipLookup)
}

func TestResolveRole_CachesAndInvalidates(t *testing.T) {
	f, room := newPermFixture()
	perms := NewPermissionService(f, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, err := perms.ResolveRole(ctx, "host", room)
		require.NoError(t, err)
		assert.Equal(t, models.RoleHost, role)
	}
	assert.Equal(t, 1, f.membershipLookup)

	f.members["ag:host"] = models.RoleMember
	perms.InvalidateMembership("ag", "host")

	role, err := perms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)
	assert.Equal(t, 2, f.membershipLookup)
}

func TestWatchMembershipChanges_RelayedChangeInvalidates(t *testing.T) {
	f, room := newPermFixture()
	perms := NewPermissionService(f, time.Minute)
	feed := changefeed.New()
	unwatch := WatchMembershipChanges(feed, perms)
	defer unwatch()
	ctx := context.Background()

	role, err := perms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleHost, role)

	// another instance demotes the host; only its change reaches us
	f.members["ag:host"] = models.RoleMember
	feed.Deliver(changefeed.Change{
		Origin:  "other-instance",
		Table:   repository.MembershipsTable,
		Op:      changefeed.OpUpdate,
		Columns: map[string]string{"agency_id": "ag", "user_id": "host"},
	})

	role, err = perms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)
	assert.Equal(t, 2, f.membershipLookup)

	// unrelated tables leave the cache alone
	feed.Deliver(changefeed.Change{
		Table:   repository.ParticipantsTable,
		Columns: map[string]string{"agency_id": "ag", "user_id": "host"},
	})
	_, err = perms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, 2, f.membershipLookup)
}

// forwardTo relays changes into another instance's feed.
type forwardTo struct {
	feed *changefeed.Feed
}

func (fw forwardTo) Forward(_ context.Context, c changefeed.Change) error {
	fw.feed.Deliver(c)
	return nil
}

func TestWatchMembershipChanges_AcrossInstances(t *testing.T) {
	f := newMicFixture(t)
	room := f.agencyRoom(t, 0)
	ctx := context.Background()

	// a second instance on the same database, caching roles on its own
	remoteFeed := changefeed.New()
	remotePerms := NewPermissionService(repository.NewSQLiteAgencyRepo(f.db.Conn, remoteFeed), time.Minute)
	unwatch := WatchMembershipChanges(remoteFeed, remotePerms)
	defer unwatch()
	f.feed.SetForwarder(forwardTo{feed: remoteFeed})

	role, err := remotePerms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	require.Equal(t, models.RoleHost, role)

	require.NoError(t, f.agencies.SetMembership(ctx, &models.Membership{AgencyID: *room.AgencyID, UserID: "host", Role: models.RoleMember}))
	role, err = remotePerms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)

	require.NoError(t, f.agencies.DeleteMembership(ctx, *room.AgencyID, "host"))
	role, err = remotePerms.ResolveRole(ctx, "host", room)
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, role)
}

func TestResolveRole_StoreError(t *testing.T) {
	f, room := newPermFixture()
	f.err = errors.New("database is locked")
	perms := NewPermissionService(f, time.Minute)

	_, err := perms.ResolveRole(context.Background(), "host", room)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	perms := NewPermissionService(&fakeAgencies{}, time.Minute)

	for _, action := range []models.MicAction{models.MicActionGrant, models.MicActionDeny, models.MicActionRevoke} {
		assert.NoError(t, perms.Authorize(models.RoleOwner, action))
		assert.NoError(t, perms.Authorize(models.RoleManager, action))
		assert.NoError(t, perms.Authorize(models.RoleHost, action))
		assert.ErrorIs(t, perms.Authorize(models.RoleMember, action), pkg.ErrUnauthorized)
		assert.ErrorIs(t, perms.Authorize(models.RoleNone, action), pkg.ErrUnauthorized)
	}

	assert.NoError(t, perms.Authorize(models.RoleNone, models.MicActionRaiseHand))
	assert.NoError(t, perms.Authorize(models.RoleNone, models.MicActionCancel))
}
