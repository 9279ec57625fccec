package workers

import (
	"context"
	"log/slog"
	"relay-lab/contract"
	"relay-lab/domain/event"
	"time"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout broadcasts audit events to multiple in-process consumers.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. EventFanout is not a message broker.
//
// It is intended for observability and side effects (audit log, disk
// archive, metrics), not for core delivery logic: a failing sink is logged
// and swallowed, it never changes a delivery outcome.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.Event
	telemetry   chan event.Event
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events, telemetry chan event.Event,
	sinks []contract.EventSink, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		events:      events,
		telemetry:   telemetry,
		sinks:       sinks,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
			select {
			case w.telemetry <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout One sink for each event. Each sink gets its own timeout so a stuck
// consumer cannot stall the pipeline.
func (w *EventFanout) Fanout(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink consume failed", "type", evt.Type, "error", err)
		}
		cancel()
	}
}
