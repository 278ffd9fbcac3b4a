package workers

import (
	"chat-session/observability"
	"context"
	"log/slog"
	"time"
)

// StatsSource is anything exposing session counters.
type StatsSource interface {
	Stats() observability.SessionStats
}

// ReporterWorker logs session counters and process usage at a fixed interval.
type ReporterWorker struct {
	log      *slog.Logger
	source   StatsSource
	interval time.Duration
	usage    func() (observability.ProcessUsage, error)
}

func NewReporterWorker(log *slog.Logger, source StatsSource, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, source: source, interval: interval, usage: observability.SampleProcess}
}

// Run starts the reporting loop until context cancellation
func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report()
			return nil
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *ReporterWorker) report() {
	stats := w.source.Stats()
	usage, err := w.usage()
	if err != nil {
		w.log.Debug("Process usage unavailable", "error", err)
	}
	w.log.Info("Session stats",
		"uptime", stats.Uptime.Round(time.Second).String(),
		"received", stats.MessagesReceived,
		"sent", stats.MessagesSent,
		"rejected", stats.Rejected,
		"delivery_failures", stats.DeliveryFailures,
		"disconnects", stats.Disconnects,
		"reconnect_attempts", stats.ReconnectAttempts,
		"dropped_events", stats.DroppedEvents,
		"cpu_percent", usage.CPUPercent,
		"memory_percent", usage.MemoryPercent,
	)
}
