package event

import (
	"fmt"
	"log/slog"
	"relay-lab/errors"
)

// WorkerRestartedAfterPanicHandler is triggered by the Supervisor when a
// worker recovers from a panic. Useful for monitoring the reliability of the
// background loops.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, counter *Counter) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, counter: counter}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.counter.Increment(RestartedAfterPanicType)
	h.log.Warn(fmt.Sprintf("Worker %s restarted after panic, total: %d",
		payload.WorkerName, h.counter.Get(RestartedAfterPanicType)))
}
