package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"relay-lab/contract"
	"relay-lab/domain"
	"relay-lab/errors"
	"relay-lab/observability"

	"github.com/samber/lo"
)

type routeFunc func(ctx context.Context, m *domain.QueuedMessage) error

// Dispatcher turns a send request into independent per-connection delivery
// attempts. It is read-only with respect to registry state (activity
// timestamps and error flags aside) and performs every transport call
// outside the registry lock, so a slow transport cannot block mutations.
type Dispatcher struct {
	log       *slog.Logger
	registry  *Registry
	transport contract.Transport
	stats     *observability.Stats
	routes    map[domain.TargetKind]routeFunc
}

func NewDispatcher(log *slog.Logger, registry *Registry, transport contract.Transport,
	stats *observability.Stats) *Dispatcher {
	d := &Dispatcher{
		log:       log,
		registry:  registry,
		transport: transport,
		stats:     stats,
	}
	// Adding a target kind is a new entry here, nothing else.
	d.routes = map[domain.TargetKind]routeFunc{
		domain.TargetUser:      d.routeUser,
		domain.TargetUsers:     d.routeUsers,
		domain.TargetGroup:     d.routeGroup,
		domain.TargetGroups:    d.routeGroups,
		domain.TargetBroadcast: d.routeBroadcast,
	}
	return d
}

// Deliver routes a queued message to its target. A nil return means the
// aggregate send policy was satisfied; the retry worker treats anything else
// as a retryable failure.
func (d *Dispatcher) Deliver(ctx context.Context, m *domain.QueuedMessage) error {
	route, ok := d.routes[m.Target.Kind]
	if !ok {
		return fmt.Errorf("unknown target kind %q", m.Target.Kind)
	}
	return route(ctx, m)
}

// SendToUser fans out to every one of the user's connections independently.
// One failing connection never aborts the others; the aggregate is a success
// when at least one connection received the message.
func (d *Dispatcher) SendToUser(ctx context.Context, user domain.UserID, payload []byte,
	typ domain.MessageType) domain.SendResult {
	if !d.registry.IsOnline(user) {
		// Cheap result, zero transport calls.
		return domain.SendResult{Err: errors.ErrUserOffline}
	}

	var result domain.SendResult
	for _, id := range d.registry.UserConnections(user) {
		err := d.transport.DeliverToConnection(ctx, id, payload)
		result.Connections = append(result.Connections, domain.ConnDelivery{Conn: id, Err: err})
		if err != nil {
			result.Failed++
			d.registry.RecordFailure(id)
			d.log.Debug("Delivery to connection failed", "conn", id, "user", user, "type", typ, "error", err)
			continue
		}
		result.Succeeded++
		d.registry.Touch(id)
	}

	if result.Succeeded == 0 {
		result.Err = errors.ErrDeliveryFailed
		return result
	}
	result.Delivered = true
	d.stats.IncrSent()
	return result
}

// SendToUsers invokes SendToUser per target. No ordering guarantee between
// users.
func (d *Dispatcher) SendToUsers(ctx context.Context, users []domain.UserID, payload []byte,
	typ domain.MessageType) domain.BroadcastResult {
	result := domain.BroadcastResult{
		Targeted: len(users),
		PerUser:  make(map[domain.UserID]domain.SendResult, len(users)),
	}
	for _, user := range users {
		r := d.SendToUser(ctx, user, payload, typ)
		result.PerUser[user] = r
		if r.Delivered {
			result.Delivered++
		} else {
			result.Failed++
		}
	}
	return result
}

// Broadcast targets every currently-registered user except the excluded set.
func (d *Dispatcher) Broadcast(ctx context.Context, payload []byte, typ domain.MessageType,
	exclude []domain.UserID) domain.BroadcastResult {
	targets := lo.Filter(d.registry.Users(), func(u domain.UserID, _ int) bool {
		return !lo.Contains(exclude, u)
	})
	return d.SendToUsers(ctx, targets, payload, typ)
}

// SendToGroup delegates to the transport's native group delivery when it has
// one, and falls back to enumerating the group's connections otherwise.
func (d *Dispatcher) SendToGroup(ctx context.Context, group string, payload []byte,
	typ domain.MessageType) domain.SendResult {
	if d.transport.SupportsGroups() {
		size := d.registry.GroupSize(group)
		if err := d.transport.DeliverToGroup(ctx, group, payload); err != nil {
			d.log.Debug("Group delivery failed", "group", group, "error", err)
			return domain.SendResult{Failed: size, Err: fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, err)}
		}
		d.stats.IncrSent()
		return domain.SendResult{Delivered: true, Succeeded: size}
	}

	var result domain.SendResult
	for _, id := range d.registry.ListGroupConnections(group) {
		err := d.transport.DeliverToConnection(ctx, id, payload)
		result.Connections = append(result.Connections, domain.ConnDelivery{Conn: id, Err: err})
		if err != nil {
			result.Failed++
			d.registry.RecordFailure(id)
			d.log.Debug("Delivery to group member failed", "conn", id, "group", group, "error", err)
			continue
		}
		result.Succeeded++
		d.registry.Touch(id)
	}
	if result.Succeeded == 0 {
		if result.Failed > 0 {
			result.Err = errors.ErrDeliveryFailed
		}
		return result
	}
	result.Delivered = true
	d.stats.IncrSent()
	return result
}

func (d *Dispatcher) SendToGroups(ctx context.Context, groups []string, payload []byte,
	typ domain.MessageType) map[string]domain.SendResult {
	results := make(map[string]domain.SendResult, len(groups))
	for _, group := range groups {
		results[group] = d.SendToGroup(ctx, group, payload, typ)
	}
	return results
}

func (d *Dispatcher) routeUser(ctx context.Context, m *domain.QueuedMessage) error {
	return d.SendToUser(ctx, m.Target.User, m.Payload, m.Type).Err
}

func (d *Dispatcher) routeUsers(ctx context.Context, m *domain.QueuedMessage) error {
	r := d.SendToUsers(ctx, m.Target.Users, m.Payload, m.Type)
	if r.Targeted > 0 && r.Delivered == 0 {
		return errors.ErrDeliveryFailed
	}
	return nil
}

func (d *Dispatcher) routeGroup(ctx context.Context, m *domain.QueuedMessage) error {
	return d.SendToGroup(ctx, m.Target.Group, m.Payload, m.Type).Err
}

func (d *Dispatcher) routeGroups(ctx context.Context, m *domain.QueuedMessage) error {
	for _, r := range d.SendToGroups(ctx, m.Target.Groups, m.Payload, m.Type) {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

func (d *Dispatcher) routeBroadcast(ctx context.Context, m *domain.QueuedMessage) error {
	r := d.Broadcast(ctx, m.Payload, m.Type, m.Target.Exclude)
	if r.Targeted > 0 && r.Delivered == 0 {
		return errors.ErrDeliveryFailed
	}
	// An empty hub makes a broadcast vacuously successful.
	return nil
}
