// Package domain contains core concepts of the delivery hub.
// This file defines QueuedMessage and the delivery state machine.
// The payload is opaque: the hub never inspects it, the transport owns
// serialization.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeChat         MessageType = "CHAT"
	TypeNotification MessageType = "NOTIFICATION"
	TypeSystem       MessageType = "SYSTEM"
)

type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "PENDING"
	StatusSending DeliveryStatus = "SENDING"
	StatusSent    DeliveryStatus = "SENT"
	StatusFailed  DeliveryStatus = "FAILED"
	StatusExpired DeliveryStatus = "EXPIRED"
)

// RetryPolicy bounds delivery attempts for a queued message. MaxRetries
// counts re-attempts after the first one; Backoff is multiplied by the retry
// count, so attempts spread out linearly.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// QueuedMessage is one unit of not-yet-confirmed delivery work. Only the
// retry worker mutates it after Enqueue.
type QueuedMessage struct {
	ID          uuid.UUID
	Target      Target
	Payload     []byte
	Type        MessageType
	CreatedAt   time.Time
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
	RetryCount  int
	Policy      RetryPolicy
	Status      DeliveryStatus
}

func NewQueuedMessage(target Target, payload []byte, typ MessageType, policy RetryPolicy) *QueuedMessage {
	return &QueuedMessage{
		ID:        uuid.New(),
		Target:    target,
		Payload:   payload,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
		Policy:    policy,
		Status:    StatusPending,
	}
}

// ExpiredAt reports whether the message must no longer be delivered.
func (m *QueuedMessage) ExpiredAt(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// DueAt reports whether the message may be attempted now. A message with no
// schedule is always due.
func (m *QueuedMessage) DueAt(now time.Time) bool {
	return m.ScheduledAt == nil || !m.ScheduledAt.After(now)
}

// Defer pushes the next attempt to the given instant. The message keeps its
// Pending status but loses its queue position.
func (m *QueuedMessage) Defer(until time.Time) {
	m.ScheduledAt = &until
}

// Expire stamps an expiry so the worker drops the message past that instant.
func (m *QueuedMessage) Expire(at time.Time) *QueuedMessage {
	m.ExpiresAt = &at
	return m
}

// Schedule defers the first delivery attempt until the given instant.
func (m *QueuedMessage) Schedule(at time.Time) *QueuedMessage {
	m.ScheduledAt = &at
	return m
}
