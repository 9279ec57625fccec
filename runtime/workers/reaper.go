package workers

import (
	"context"
	"log/slog"
	"relay-lab/contract"
	"relay-lab/domain"
	"time"
)

var _ contract.Worker = (*ReaperWorker)(nil)

// StaleScanner lists connections whose last activity fell out of the window.
type StaleScanner interface {
	Stale(now time.Time) []domain.ConnID
}

// Evictor disconnects one connection through the same path as an explicit
// disconnect, so every registry invariant holds.
type Evictor interface {
	Evict(id domain.ConnID, reason string) bool
}

// ExpiredDiscarder drops queued messages past their expiry.
type ExpiredDiscarder interface {
	DiscardExpired(cutoff time.Time) int
}

// HistoryPruner deletes archived messages older than the retention window.
type HistoryPruner interface {
	PruneOlderThan(cutoff time.Time) (int, error)
}

// ReaperWorker periodically evicts stale connections, discards expired
// queued messages and prunes the delivery history past its retention window.
// Each sweep is best effort: one bad item never aborts the rest.
type ReaperWorker struct {
	log       *slog.Logger
	interval  time.Duration
	conns     StaleScanner
	evictor   Evictor
	queue     ExpiredDiscarder
	history   HistoryPruner
	retention time.Duration
}

func NewReaperWorker(log *slog.Logger, interval time.Duration, conns StaleScanner,
	evictor Evictor, queue ExpiredDiscarder, history HistoryPruner, retention time.Duration) *ReaperWorker {
	return &ReaperWorker{
		log:       log,
		interval:  interval,
		conns:     conns,
		evictor:   evictor,
		queue:     queue,
		history:   history,
		retention: retention,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return nil
		case <-ticker.C:
			evicted, discarded := w.Sweep(time.Now().UTC())
			if evicted > 0 || discarded > 0 {
				w.log.Info("Reaper sweep done", "evicted", evicted, "discarded", discarded)
			}
		}
	}
}

// Sweep runs one reaping cycle against the given instant and reports how
// many connections were evicted and messages discarded.
func (w *ReaperWorker) Sweep(now time.Time) (evicted, discarded int) {
	for _, id := range w.conns.Stale(now) {
		if w.evictor.Evict(id, "stale connection") {
			evicted++
			continue
		}
		// Already gone, a disconnect raced the sweep.
		w.log.Debug("Stale connection vanished before eviction", "conn", id)
	}

	discarded = w.queue.DiscardExpired(now)

	if w.history != nil && w.retention > 0 {
		pruned, err := w.history.PruneOlderThan(now.Add(-w.retention))
		if err != nil {
			w.log.Warn("History pruning failed", "error", err)
		} else if pruned > 0 {
			w.log.Debug("History pruned", "records", pruned)
		}
	}
	return evicted, discarded
}
