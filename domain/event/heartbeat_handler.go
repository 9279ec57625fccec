package event

import (
	"fmt"
	"log/slog"
	"relay-lab/errors"
)

// HeartbeatHandler logs the hub's own CPU and memory sampled by the
// heartbeat worker, and raises a warning past the CPU threshold.
type HeartbeatHandler struct {
	log          *slog.Logger
	cpuThreshold float64
}

func NewHeartbeatHandler(log *slog.Logger, cpuThreshold float64) *HeartbeatHandler {
	return &HeartbeatHandler{log: log, cpuThreshold: cpuThreshold}
}

func (h HeartbeatHandler) Handle(event Event) {
	if event.Type != HeartbeatType {
		return
	}
	payload, ok := event.Payload.(Heartbeat)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	h.log.Debug(fmt.Sprintf("Heartbeat pid=%d status=%s cpu=%.1f%% ram=%dMB",
		payload.PID, payload.PIDStatus, payload.Cpu, payload.RamBytes/1024/1024))
	if h.cpuThreshold > 0 && payload.Cpu >= h.cpuThreshold {
		h.log.Warn(fmt.Sprintf("Hub CPU usage high: %.1f%%", payload.Cpu))
	}
}
