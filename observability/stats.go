// Package observability holds the hub's monotonic counters. Everything else
// in the stats snapshot is derived by re-scanning the registry and queue.
package observability

import "sync/atomic"

// Stats is safe for concurrent use; every field is only touched through
// atomic operations.
type Stats struct {
	totalConnections  uint64
	enqueuedMessages  uint64
	sentMessages      uint64
	failedMessages    uint64
	expiredMessages   uint64
	reapedConnections uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrTotalConnections() {
	atomic.AddUint64(&s.totalConnections, 1)
}

func (s *Stats) IncrEnqueued() {
	atomic.AddUint64(&s.enqueuedMessages, 1)
}

func (s *Stats) IncrSent() {
	atomic.AddUint64(&s.sentMessages, 1)
}

func (s *Stats) IncrFailed() {
	atomic.AddUint64(&s.failedMessages, 1)
}

func (s *Stats) IncrExpired() {
	atomic.AddUint64(&s.expiredMessages, 1)
}

func (s *Stats) IncrReaped() {
	atomic.AddUint64(&s.reapedConnections, 1)
}

func (s *Stats) TotalConnections() uint64 { return atomic.LoadUint64(&s.totalConnections) }
func (s *Stats) Enqueued() uint64         { return atomic.LoadUint64(&s.enqueuedMessages) }
func (s *Stats) Sent() uint64             { return atomic.LoadUint64(&s.sentMessages) }
func (s *Stats) Failed() uint64           { return atomic.LoadUint64(&s.failedMessages) }
func (s *Stats) Expired() uint64          { return atomic.LoadUint64(&s.expiredMessages) }
func (s *Stats) Reaped() uint64           { return atomic.LoadUint64(&s.reapedConnections) }
