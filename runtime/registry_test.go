package runtime

import (
	"relay-lab/domain"
	"relay-lab/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Add_One_User_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	user := domain.UserID("alice")
	connID := domain.ConnID(uuid.NewString())

	// Given an empty registry
	req.Zero(registry.Size())
	req.False(registry.IsOnline(user))

	// When the user connects
	err := registry.Add(domain.NewConnection(user, connID))

	// Then the connection is registered and indexed under its owner
	req.NoError(err)
	req.Equal(1, registry.Size())
	req.True(registry.IsOnline(user))
	req.Equal(1, registry.ConnectionCount(user))
	req.Contains(registry.UserConnections(user), connID)

	c, ok := registry.Get(connID)
	req.True(ok)
	req.Equal(user, c.UserID)
	req.Equal(domain.StateConnected, c.State)
}

func TestRegistry_Add_Duplicate_ID_Rejected(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	connID := domain.ConnID(uuid.NewString())

	// Given a registered connection
	req.NoError(registry.Add(domain.NewConnection("alice", connID)))

	// When the same id is registered again, even for another user
	err := registry.Add(domain.NewConnection("bob", connID))

	// Then the second registration is rejected and the first one survives
	req.ErrorIs(err, errors.ErrConnectionExists)
	req.Equal(1, registry.Size())
	c, ok := registry.Get(connID)
	req.True(ok)
	req.Equal(domain.UserID("alice"), c.UserID)
}

func TestRegistry_Add_One_User_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	user := domain.UserID("alice")
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())

	// When the same user connects twice (two tabs, two devices)
	req.NoError(registry.Add(domain.NewConnection(user, conn1)))
	req.NoError(registry.Add(domain.NewConnection(user, conn2)))

	// Then both connections are tracked but the user counts once
	req.Equal(2, registry.Size())
	req.Equal(2, registry.ConnectionCount(user))
	req.Equal(1, registry.OnlineUsers())
}

func TestRegistry_Remove_Last_Connection_Takes_User_Offline(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	user := domain.UserID("alice")
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())

	// Given a user with two connections
	req.NoError(registry.Add(domain.NewConnection(user, conn1)))
	req.NoError(registry.Add(domain.NewConnection(user, conn2)))

	// When one connection drops
	removed, ok := registry.Remove(conn1)

	// Then the user is still online through the other one
	req.True(ok)
	req.Equal(domain.StateDisconnected, removed.State)
	req.True(registry.IsOnline(user))
	req.Equal(1, registry.ConnectionCount(user))

	// When the last connection drops
	_, ok = registry.Remove(conn2)

	// Then the user is offline and no empty set lingers
	req.True(ok)
	req.False(registry.IsOnline(user))
	req.Zero(registry.ConnectionCount(user))
	req.Empty(registry.Users())
}

func TestRegistry_Remove_Unknown_Is_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)

	_, ok := registry.Remove(domain.ConnID(uuid.NewString()))

	req.False(ok)
	req.Zero(registry.Size())
}

func TestRegistry_Touch_Refreshes_Activity(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	connID := domain.ConnID(uuid.NewString())

	// Given a connection whose last activity is long past
	c := domain.NewConnection("alice", connID)
	c.LastActivity = time.Now().UTC().Add(-time.Hour)
	req.NoError(registry.Add(c))
	req.False(registry.IsOnline("alice"))

	// When the connection shows activity
	req.True(registry.Touch(connID))

	// Then the user is online again
	req.True(registry.IsOnline("alice"))
	req.False(registry.Touch(domain.ConnID("unknown")))
}

func TestRegistry_Stale_Uses_Strict_Window(t *testing.T) {
	req := require.New(t)
	// A zero timeout means no activity window at all, so even a connection
	// created this instant is stale.
	registry := NewRegistry(0)
	connID := domain.ConnID(uuid.NewString())
	req.NoError(registry.Add(domain.NewConnection("alice", connID)))

	stale := registry.Stale(time.Now().UTC())

	req.Len(stale, 1)
	req.Equal(connID, stale[0])
	req.False(registry.IsOnline("alice"))
}

func TestRegistry_ListActive_Returns_Snapshot_Copies(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	fresh := domain.ConnID(uuid.NewString())
	idle := domain.ConnID(uuid.NewString())

	// Given one fresh and one idle connection
	req.NoError(registry.Add(domain.NewConnection("alice", fresh)))
	stale := domain.NewConnection("bob", idle)
	stale.LastActivity = time.Now().UTC().Add(-time.Hour)
	req.NoError(registry.Add(stale))

	// When listing active connections
	active := registry.ListActive()

	// Then only the fresh one shows up
	req.Len(active, 1)
	req.Equal(fresh, active[0].ID)

	// And mutating the snapshot never reaches the registry
	active[0].State = domain.StateError
	c, ok := registry.Get(fresh)
	req.True(ok)
	req.Equal(domain.StateConnected, c.State)
}

func TestRegistry_Repeated_Failures_Flag_The_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	connID := domain.ConnID(uuid.NewString())
	req.NoError(registry.Add(domain.NewConnection("alice", connID)))

	// A couple of failed writes are tolerated as transient
	registry.RecordFailure(connID)
	registry.RecordFailure(connID)
	c, ok := registry.Get(connID)
	req.True(ok)
	req.Equal(domain.StateConnected, c.State)
	req.Equal(2, c.DeliveryFailures)

	// The streak reaching the threshold flags it, but keeps it registered
	registry.RecordFailure(connID)
	c, ok = registry.Get(connID)
	req.True(ok)
	req.Equal(domain.StateError, c.State)
	req.Equal(1, registry.Size())
}

func TestRegistry_Touch_Ends_A_Failure_Streak(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(time.Minute)
	connID := domain.ConnID(uuid.NewString())
	req.NoError(registry.Add(domain.NewConnection("alice", connID)))

	for i := 0; i < errorThreshold; i++ {
		registry.RecordFailure(connID)
	}
	req.True(registry.Touch(connID))

	// Successful activity resets both the streak and the error state
	c, ok := registry.Get(connID)
	req.True(ok)
	req.Equal(domain.StateConnected, c.State)
	req.Zero(c.DeliveryFailures)
}
