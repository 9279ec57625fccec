package workers

import (
	"context"
	"log/slog"
	"os"
	"relay-lab/contract"
	"relay-lab/domain/event"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker samples the hub's own CPU, RSS and OS status on a fixed
// interval and pushes them into the telemetry channel.
type HeartbeatWorker struct {
	log       *slog.Logger
	interval  time.Duration
	telemetry chan<- event.Event
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, telemetry chan<- event.Event) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, interval: interval, telemetry: telemetry}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting hub heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			evt := event.New(event.HeartbeatType, event.Heartbeat{
				PID:       os.Getpid(),
				PIDStatus: status,
				Cpu:       cpu,
				RamBytes:  rss,
			})
			select {
			case w.telemetry <- evt:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
