package domain

import "time"

// HubStats is a point-in-time aggregation. Counters are monotonic; sizes are
// recomputed from the registry and queue on every snapshot, never stored as
// authoritative state.
type HubStats struct {
	ActiveConnections int
	OnlineUsers       int
	Groups            int
	QueueDepth        int
	QueueCapacity     int

	TotalConnections  uint64
	EnqueuedMessages  uint64
	SentMessages      uint64
	FailedMessages    uint64
	ExpiredMessages   uint64
	ReapedConnections uint64
}

// GroupStats describes one named group.
type GroupStats struct {
	Name         string
	Connections  int
	Users        int
	LastActivity time.Time
}

// QueueStatus is the queue's backpressure view.
type QueueStatus struct {
	Depth    int
	Capacity int
}
