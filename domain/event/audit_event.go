package event

import (
	"relay-lab/domain"
	"time"
)

// ConnectionOpened is emitted once per successful Connect.
type ConnectionOpened struct {
	User domain.UserID
	Conn domain.ConnID
}

// ConnectionClosed is emitted on explicit disconnect, forced disconnect and
// reaping. Reason distinguishes the three paths.
type ConnectionClosed struct {
	User     domain.UserID
	Conn     domain.ConnID
	Duration time.Duration
	Reason   string
}

// MessageSent carries the full terminal message so disk sinks can archive it
// without a second lookup.
type MessageSent struct {
	Message domain.QueuedMessage
}

// MessageFailed is emitted exactly once, when the retry budget is exhausted.
type MessageFailed struct {
	Message   domain.QueuedMessage
	LastError string
}

// MessageExpired is emitted when the worker drops a message whose expiry
// predates its dequeue. No delivery was attempted.
type MessageExpired struct {
	Message domain.QueuedMessage
}
