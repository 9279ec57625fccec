package workers

import (
	"context"
	"log/slog"
	"reflect"
	"relay-lab/contract"
	"relay-lab/domain/event"
	"time"
)

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

type NamedChannel struct {
	Name    string
	Channel any
}

// DepthGauge exposes the fill level of a bounded structure, the delivery
// queue in practice.
type DepthGauge interface {
	Len() int
	Capacity() int
}

type NamedGauge struct {
	Name  string
	Gauge DepthGauge
}

// ChannelCapacityWorker periodically reports channel and queue fill levels.
// Reading len/cap is non-blocking so this never interferes with the other
// goroutines, and a dropped sample is fine because metrics are periodic.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	gauges         []NamedGauge
	telemetry      chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, gauges []NamedGauge,
	telemetry chan event.Event, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		gauges:         gauges,
		telemetry:      telemetry,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

func (w *ChannelCapacityWorker) sample(ctx context.Context) {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.report(ctx, nc.Name, v.Cap(), v.Len())
	}
	for _, ng := range w.gauges {
		w.report(ctx, ng.Name, ng.Gauge.Capacity(), ng.Gauge.Len())
	}
}

func (w *ChannelCapacityWorker) report(ctx context.Context, name string, capacity, length int) {
	evt := event.New(event.ChannelCapacityType, event.ChannelCapacity{
		ChannelName: name,
		Capacity:    capacity,
		Length:      length,
	})
	select {
	case <-ctx.Done():
	case w.telemetry <- evt:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
}
