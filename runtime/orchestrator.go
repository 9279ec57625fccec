// Package runtime wires the registry, queue, dispatcher and supervised
// workers together. It owns event propagation and worker lifecycles without
// containing delivery policy itself: the queue state machine lives in the
// retry worker, the fan-out policy in the dispatcher.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/contract"
	"relay-lab/domain"
	"relay-lab/domain/event"
	"relay-lab/errors"
	"relay-lab/observability"
	"relay-lab/runtime/workers"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Both capabilities are consulted on the external Authorizer before the
// guarded operation runs.
const (
	CapabilityConnect    = domain.CapabilityConnect
	CapabilitySendSystem = domain.CapabilitySendSystem
)

// Options groups the tuning knobs the orchestrator hands to its workers.
type Options struct {
	BatchSize            int
	PollInterval         time.Duration
	ReapInterval         time.Duration
	RetentionWindow      time.Duration
	SinkTimeout          time.Duration
	MetricInterval       time.Duration
	HeartbeatInterval    time.Duration
	RateLimit            rate.Limit
	RateBurst            int
	LowCapacityThreshold int
	CPUWarnThreshold     float64
}

// Orchestrator is the single public entry point of the hub. Exactly one
// instance exists per process; every collaborator receives it by injection,
// never through package globals.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	opts       Options
	registry   *Registry
	queue      *Queue
	stats      *observability.Stats
	dispatcher *Dispatcher
	transport  contract.Transport
	authorizer contract.Authorizer
	archiver   contract.Archiver
	pruner     workers.HistoryPruner
	supervisor contract.ISupervisor
	events     chan event.Event
	telemetry  chan event.Event
	sinks      []contract.EventSink
	handlers   []event.Handler
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry,
	queue *Queue, stats *observability.Stats, dispatcher *Dispatcher,
	transport contract.Transport, authorizer contract.Authorizer,
	archiver contract.Archiver, pruner workers.HistoryPruner,
	events, telemetry chan event.Event, opts Options) *Orchestrator {
	return &Orchestrator{
		log:        log,
		opts:       opts,
		registry:   registry,
		queue:      queue,
		stats:      stats,
		dispatcher: dispatcher,
		transport:  transport,
		authorizer: authorizer,
		archiver:   archiver,
		pruner:     pruner,
		supervisor: supervisor,
		events:     events,
		telemetry:  telemetry,
	}
}

// AddSinks registers audit consumers. Must be called before Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sinks = append(o.sinks, sinks...)
}

// AddHandlers registers telemetry handlers. Must be called before Start.
func (o *Orchestrator) AddHandlers(handlers ...event.Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, handlers...)
}

// Connect registers a new connection for the user. The id must be unused and
// the user must hold the connect capability.
func (o *Orchestrator) Connect(ctx context.Context, user domain.UserID, id domain.ConnID) error {
	if !o.authorizer.HasPermission(ctx, user, CapabilityConnect) {
		return errors.ErrUnauthorized
	}
	if err := o.registry.Add(domain.NewConnection(user, id)); err != nil {
		return err
	}
	o.stats.IncrTotalConnections()
	o.publish(event.New(event.ConnectionOpenedType, event.ConnectionOpened{User: user, Conn: id}))
	return nil
}

// Disconnect removes the connection and reports how long it was open.
// Disconnecting an unknown id is a no-op success with zero duration.
func (o *Orchestrator) Disconnect(user domain.UserID, id domain.ConnID) time.Duration {
	c, ok := o.registry.Remove(id)
	if !ok {
		return 0
	}
	if c.UserID != user {
		o.log.Warn("Disconnect by non-owning user", "conn", id, "owner", c.UserID, "caller", user)
	}
	duration := time.Since(c.ConnectedAt)
	o.publish(event.New(event.ConnectionClosedType, event.ConnectionClosed{
		User:     c.UserID,
		Conn:     c.ID,
		Duration: duration,
		Reason:   "client disconnect",
	}))
	return duration
}

// Evict removes a connection on the reaper's behalf, through the same path
// as Disconnect so every invariant holds.
func (o *Orchestrator) Evict(id domain.ConnID, reason string) bool {
	c, ok := o.registry.Remove(id)
	if !ok {
		return false
	}
	o.stats.IncrReaped()
	o.publish(event.New(event.ConnectionClosedType, event.ConnectionClosed{
		User:     c.UserID,
		Conn:     c.ID,
		Duration: time.Since(c.ConnectedAt),
		Reason:   reason,
	}))
	return true
}

// ForceDisconnect closes all of a user's connections after notifying each of
// the reason. A transport notify failure never blocks disconnecting the
// rest. Returns how many were closed.
func (o *Orchestrator) ForceDisconnect(ctx context.Context, user domain.UserID, reason string) int {
	closed := 0
	for _, id := range o.registry.UserConnections(user) {
		if err := o.transport.NotifyAndClose(ctx, id, reason); err != nil {
			o.log.Warn("Transport notify failed before forced disconnect", "conn", id, "error", err)
		}
		c, ok := o.registry.Remove(id)
		if !ok {
			continue
		}
		closed++
		o.publish(event.New(event.ConnectionClosedType, event.ConnectionClosed{
			User:     c.UserID,
			Conn:     c.ID,
			Duration: time.Since(c.ConnectedAt),
			Reason:   reason,
		}))
	}
	return closed
}

// Touch refreshes a connection's activity window, typically on every inbound
// client frame.
func (o *Orchestrator) Touch(id domain.ConnID) {
	o.registry.Touch(id)
}

func (o *Orchestrator) IsOnline(user domain.UserID) bool {
	return o.registry.IsOnline(user)
}

func (o *Orchestrator) ConnectionCount(user domain.UserID) int {
	return o.registry.ConnectionCount(user)
}

func (o *Orchestrator) ListActiveConnections() []domain.Connection {
	return o.registry.ListActive()
}

// JoinGroup indexes the membership and tells the transport, when it cares.
func (o *Orchestrator) JoinGroup(ctx context.Context, id domain.ConnID, group string) error {
	if err := o.registry.JoinGroup(id, group); err != nil {
		return err
	}
	if err := o.transport.JoinGroup(ctx, id, group); err != nil {
		// Membership already holds in the registry; transport grouping is an
		// optimization, not the source of truth.
		o.log.Warn("Transport join group failed", "conn", id, "group", group, "error", err)
	}
	return nil
}

func (o *Orchestrator) LeaveGroup(ctx context.Context, id domain.ConnID, group string) {
	o.registry.LeaveGroup(id, group)
	if err := o.transport.LeaveGroup(ctx, id, group); err != nil {
		o.log.Warn("Transport leave group failed", "conn", id, "group", group, "error", err)
	}
}

func (o *Orchestrator) ListGroupConnections(group string) []domain.ConnID {
	return o.registry.ListGroupConnections(group)
}

func (o *Orchestrator) ListUserGroups(user domain.UserID) []string {
	return o.registry.ListUserGroups(user)
}

func (o *Orchestrator) ListGroups() []string {
	return o.registry.ListGroups()
}

func (o *Orchestrator) SendToUser(ctx context.Context, user domain.UserID, payload []byte,
	typ domain.MessageType) domain.SendResult {
	return o.dispatcher.SendToUser(ctx, user, payload, typ)
}

func (o *Orchestrator) SendToUsers(ctx context.Context, users []domain.UserID, payload []byte,
	typ domain.MessageType) domain.BroadcastResult {
	return o.dispatcher.SendToUsers(ctx, users, payload, typ)
}

func (o *Orchestrator) Broadcast(ctx context.Context, payload []byte, typ domain.MessageType,
	exclude []domain.UserID) domain.BroadcastResult {
	return o.dispatcher.Broadcast(ctx, payload, typ, exclude)
}

func (o *Orchestrator) SendToGroup(ctx context.Context, group string, payload []byte,
	typ domain.MessageType) domain.SendResult {
	return o.dispatcher.SendToGroup(ctx, group, payload, typ)
}

func (o *Orchestrator) SendToGroups(ctx context.Context, groups []string, payload []byte,
	typ domain.MessageType) map[string]domain.SendResult {
	return o.dispatcher.SendToGroups(ctx, groups, payload, typ)
}

// CanSendSystem reports whether the user may emit system-priority messages.
func (o *Orchestrator) CanSendSystem(ctx context.Context, user domain.UserID) bool {
	return o.authorizer.HasPermission(ctx, user, CapabilitySendSystem)
}

// Enqueue hands a message to the delivery queue for guaranteed-attempt
// delivery. ErrQueueFull is the backpressure signal; the caller decides what
// to do with it.
func (o *Orchestrator) Enqueue(m *domain.QueuedMessage) error {
	return o.queue.Enqueue(m)
}

func (o *Orchestrator) GetQueueStatus() domain.QueueStatus {
	return o.queue.Status()
}

// GetStats snapshots counters and recomputes current sizes from the live
// structures.
func (o *Orchestrator) GetStats() domain.HubStats {
	return domain.HubStats{
		ActiveConnections: o.registry.Size(),
		OnlineUsers:       o.registry.OnlineUsers(),
		Groups:            len(o.registry.ListGroups()),
		QueueDepth:        o.queue.Len(),
		QueueCapacity:     o.queue.Capacity(),
		TotalConnections:  o.stats.TotalConnections(),
		EnqueuedMessages:  o.stats.Enqueued(),
		SentMessages:      o.stats.Sent(),
		FailedMessages:    o.stats.Failed(),
		ExpiredMessages:   o.stats.Expired(),
		ReapedConnections: o.stats.Reaped(),
	}
}

func (o *Orchestrator) GetGroupStats(group string) (domain.GroupStats, bool) {
	return o.registry.GroupStats(group)
}

// Start assembles the supervised workers and blocks until shutdown.
func (o *Orchestrator) Start(ctx context.Context) error {
	// Preparation phase, no lock held.
	var limiter *rate.Limiter
	if o.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(o.opts.RateLimit, o.opts.RateBurst)
	}
	retry := workers.NewRetryWorker(o.log, o.queue, o.dispatcher, o.archiver, o.stats,
		o.events, limiter, o.opts.BatchSize, o.opts.PollInterval)
	reaper := workers.NewReaperWorker(o.log, o.opts.ReapInterval, o.registry, o,
		o.queue, o.pruner, o.opts.RetentionWindow)
	capacity := workers.NewChannelCapacityWorker(o.log,
		[]workers.NamedChannel{
			{Name: "audit-events", Channel: o.events},
			{Name: "telemetry-events", Channel: o.telemetry},
		},
		[]workers.NamedGauge{{Name: "delivery-queue", Gauge: o.queue}},
		o.telemetry, o.opts.MetricInterval)
	heartbeat := workers.NewHeartbeatWorker(o.log, o.opts.HeartbeatInterval, o.telemetry)

	// Short critical section: registering workers with the supervisor.
	o.mu.Lock()
	handlers := append([]event.Handler{
		event.NewChannelCapacityHandler(o.log, o.opts.LowCapacityThreshold),
		event.NewWorkerRestartedAfterPanicHandler(o.log, event.NewCounter()),
		event.NewHeartbeatHandler(o.log, o.opts.CPUWarnThreshold),
	}, o.handlers...)
	fanout := workers.NewEventFanout(o.log, o.events, o.telemetry, o.sinks, o.opts.SinkTimeout)
	telemetry := workers.NewTelemetryWorker(o.log, o.telemetry, handlers)

	o.supervisor.Add(retry, reaper, fanout, telemetry, capacity, heartbeat)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown: workers stop accepting new cycles,
// finish their in-flight batch and exit.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// publish is fire-and-forget: when the audit channel is saturated the event
// is dropped, never the caller blocked.
func (o *Orchestrator) publish(evt event.Event) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn(fmt.Sprintf("Audit channel full, dropping %s event", evt.Type))
	}
}
