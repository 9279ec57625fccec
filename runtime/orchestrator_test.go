package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/domain"
	"relay-lab/domain/event"
	"relay-lab/errors"
	"relay-lab/mocks"
	"relay-lab/observability"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	registry     *Registry
	queue        *Queue
	stats        *observability.Stats
	transport    *mocks.MockTransport
	authorizer   *mocks.MockAuthorizer
	events       chan event.Event
}

func newOrchestratorUnderTest(t *testing.T) orchestratorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := slog.Default()
	transport := mocks.NewMockTransport(ctrl)
	authorizer := mocks.NewMockAuthorizer(ctrl)
	supervisor := mocks.NewMockISupervisor(ctrl)
	registry := NewRegistry(time.Minute)
	stats := observability.NewStats()
	queue := NewQueue(16, stats)
	dispatcher := NewDispatcher(log, registry, transport, stats)
	events := make(chan event.Event, 16)
	telemetry := make(chan event.Event, 16)

	orchestrator := NewOrchestrator(log, supervisor, registry, queue, stats, dispatcher,
		transport, authorizer, nil, nil, events, telemetry, Options{})
	return orchestratorFixture{
		orchestrator: orchestrator,
		registry:     registry,
		queue:        queue,
		stats:        stats,
		transport:    transport,
		authorizer:   authorizer,
		events:       events,
	}
}

func TestOrchestrator_Connect_Then_Disconnect(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	user := domain.UserID("alice")
	connID := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), user, CapabilityConnect).Return(true)

	// When the user connects
	req.NoError(f.orchestrator.Connect(context.Background(), user, connID))

	// Then the hub sees them and the lifecycle event is published
	req.True(f.orchestrator.IsOnline(user))
	req.Equal(uint64(1), f.stats.TotalConnections())

	opened := <-f.events
	req.Equal(event.ConnectionOpenedType, opened.Type)
	req.Equal(event.ConnectionOpened{User: user, Conn: connID}, opened.Payload)

	// When the user disconnects
	duration := f.orchestrator.Disconnect(user, connID)

	// Then they are offline and the close event carries the session duration
	req.False(f.orchestrator.IsOnline(user))
	req.GreaterOrEqual(duration, time.Duration(0))

	closed := <-f.events
	req.Equal(event.ConnectionClosedType, closed.Type)
	payload, ok := closed.Payload.(event.ConnectionClosed)
	req.True(ok)
	req.Equal(user, payload.User)
	req.Equal("client disconnect", payload.Reason)
}

func TestOrchestrator_Connect_Without_Capability_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	user := domain.UserID("intruder")

	f.authorizer.EXPECT().HasPermission(gomock.Any(), user, CapabilityConnect).Return(false)

	err := f.orchestrator.Connect(context.Background(), user, domain.ConnID(uuid.NewString()))

	req.ErrorIs(err, errors.ErrUnauthorized)
	req.Zero(f.registry.Size())
	req.Zero(f.stats.TotalConnections())
	req.Empty(f.events)
}

func TestOrchestrator_Connect_Duplicate_ID_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	connID := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), gomock.Any(), CapabilityConnect).
		Return(true).Times(2)

	req.NoError(f.orchestrator.Connect(context.Background(), "alice", connID))
	err := f.orchestrator.Connect(context.Background(), "bob", connID)

	req.ErrorIs(err, errors.ErrConnectionExists)
	req.Equal(uint64(1), f.stats.TotalConnections())
}

func TestOrchestrator_Disconnect_Unknown_Is_NoOp(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)

	duration := f.orchestrator.Disconnect("alice", domain.ConnID(uuid.NewString()))

	req.Zero(duration)
	req.Empty(f.events)
}

func TestOrchestrator_ForceDisconnect_Survives_Notify_Failures(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	user := domain.UserID("alice")
	conn1 := domain.ConnID(uuid.NewString())
	conn2 := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), user, CapabilityConnect).
		Return(true).Times(2)
	req.NoError(f.orchestrator.Connect(context.Background(), user, conn1))
	req.NoError(f.orchestrator.Connect(context.Background(), user, conn2))

	// Given one connection that refuses the close notification
	f.transport.EXPECT().NotifyAndClose(gomock.Any(), conn1, "banned").
		Return(fmt.Errorf("write: broken pipe"))
	f.transport.EXPECT().NotifyAndClose(gomock.Any(), conn2, "banned").Return(nil)

	// When force-disconnecting the user
	closed := f.orchestrator.ForceDisconnect(context.Background(), user, "banned")

	// Then both connections are gone regardless
	req.Equal(2, closed)
	req.False(f.orchestrator.IsOnline(user))
	req.Zero(f.orchestrator.ConnectionCount(user))
}

func TestOrchestrator_Evict_Counts_Reaped(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	connID := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), gomock.Any(), CapabilityConnect).Return(true)
	req.NoError(f.orchestrator.Connect(context.Background(), "alice", connID))
	<-f.events

	req.True(f.orchestrator.Evict(connID, "stale connection"))

	req.Equal(uint64(1), f.stats.Reaped())
	closed := <-f.events
	payload, ok := closed.Payload.(event.ConnectionClosed)
	req.True(ok)
	req.Equal("stale connection", payload.Reason)

	// Evicting again is a no-op, not a double count
	req.False(f.orchestrator.Evict(connID, "stale connection"))
	req.Equal(uint64(1), f.stats.Reaped())
}

func TestOrchestrator_JoinGroup_Keeps_Registry_Authoritative(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	connID := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), gomock.Any(), CapabilityConnect).Return(true)
	req.NoError(f.orchestrator.Connect(context.Background(), "alice", connID))

	// Given a transport that cannot join the group natively
	f.transport.EXPECT().JoinGroup(gomock.Any(), connID, "ops").
		Return(fmt.Errorf("no native groups"))

	// When joining, the transport failure does not undo the membership
	req.NoError(f.orchestrator.JoinGroup(context.Background(), connID, "ops"))
	req.Contains(f.orchestrator.ListGroupConnections("ops"), connID)
}

func TestOrchestrator_GetStats_Snapshots_Counters_And_Sizes(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)
	connID := domain.ConnID(uuid.NewString())

	f.authorizer.EXPECT().HasPermission(gomock.Any(), gomock.Any(), CapabilityConnect).Return(true)
	req.NoError(f.orchestrator.Connect(context.Background(), "alice", connID))
	req.NoError(f.orchestrator.Enqueue(domain.NewQueuedMessage(domain.UserTarget("alice"),
		[]byte("hi"), domain.TypeChat, domain.RetryPolicy{})))

	stats := f.orchestrator.GetStats()

	req.Equal(1, stats.ActiveConnections)
	req.Equal(1, stats.OnlineUsers)
	req.Equal(1, stats.QueueDepth)
	req.Equal(16, stats.QueueCapacity)
	req.Equal(uint64(1), stats.TotalConnections)
	req.Equal(uint64(1), stats.EnqueuedMessages)
}

func TestOrchestrator_CanSendSystem_Consults_Authorizer(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorUnderTest(t)

	f.authorizer.EXPECT().HasPermission(gomock.Any(), domain.UserID("ops-bot"), CapabilitySendSystem).
		Return(true)
	f.authorizer.EXPECT().HasPermission(gomock.Any(), domain.UserID("alice"), CapabilitySendSystem).
		Return(false)

	req.True(f.orchestrator.CanSendSystem(context.Background(), "ops-bot"))
	req.False(f.orchestrator.CanSendSystem(context.Background(), "alice"))
}
