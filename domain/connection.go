// Package domain contains core concepts of the delivery hub.
// This file defines Connection entities and their lifecycle.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type ConnID string
type UserID string

type ConnState string

const (
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
	StateError        ConnState = "ERROR"
)

// Connection is one addressable, currently-open channel to a single client,
// owned by exactly one user. The registry is the only owner of its mutable
// fields.
type Connection struct {
	ID           ConnID
	UserID       UserID
	ConnectedAt  time.Time
	LastActivity time.Time
	State        ConnState

	// DeliveryFailures counts consecutive failed writes. Any successful
	// activity resets it.
	DeliveryFailures int
}

func NewConnection(userID UserID, id ConnID) *Connection {
	now := time.Now().UTC()
	return &Connection{
		ID:           id,
		UserID:       userID,
		ConnectedAt:  now,
		LastActivity: now,
		State:        StateConnected,
	}
}

// ActiveWithin reports whether the connection showed activity strictly within
// the timeout window. A zero timeout therefore considers every connection
// stale.
func (c *Connection) ActiveWithin(timeout time.Duration, now time.Time) bool {
	return now.Sub(c.LastActivity) < timeout
}
