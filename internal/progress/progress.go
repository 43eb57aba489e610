// Package progress delivers lifecycle checkpoints to the caller through
// every configured channel: structured logs, the signal bus (bridged to
// WebSocket clients) and chat notifications.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// ChannelPrefix is prepended to the trace id to form the bus channel a
// request's events are published on.
const ChannelPrefix = "ch:progress:"

// Channel returns the bus channel for traceID.
func Channel(traceID string) string { return ChannelPrefix + traceID }

// Fanout forwards each event to every sink in order.
type Fanout []domain.ProgressSink

// Progress implements domain.ProgressSink.
func (f Fanout) Progress(ctx context.Context, ev domain.ProgressEvent) {
	for _, s := range f {
		if s != nil {
			s.Progress(ctx, ev)
		}
	}
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With(slog.String("component", "progress"))}
}

func (s *LogSink) Progress(ctx context.Context, ev domain.ProgressEvent) {
	level := slog.LevelInfo
	switch ev.Stage {
	case domain.StageTxFailed, domain.StageTxTimedOut, domain.StageShortfall:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("trace_id", ev.TraceID),
		slog.String("stage", string(ev.Stage)),
		slog.Int("hop", ev.HopIndex),
	}
	if ev.TxHash != "" {
		attrs = append(attrs, slog.String("tx_hash", ev.TxHash))
	}
	s.logger.LogAttrs(ctx, level, ev.Message, attrs...)
}

// Publisher is the slice of domain.SignalBus BusSink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BusSink publishes events as JSON on the request's channel.
type BusSink struct {
	bus    Publisher
	logger *slog.Logger
}

// NewBusSink creates a BusSink.
func NewBusSink(bus Publisher, logger *slog.Logger) *BusSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusSink{bus: bus, logger: logger.With(slog.String("component", "progress_bus"))}
}

func (s *BusSink) Progress(ctx context.Context, ev domain.ProgressEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal progress event", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, Channel(ev.TraceID), payload); err != nil {
		s.logger.WarnContext(ctx, "publish progress event failed",
			slog.String("trace_id", ev.TraceID),
			slog.String("error", err.Error()),
		)
	}
}

// Notifier is the slice of notify.Notifier NotifierSink needs.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NotifierSink forwards selected stages to chat channels. Delivery runs in
// the background so a slow webhook never holds up a hop.
type NotifierSink struct {
	notifier Notifier
	stages   map[domain.ProgressStage]bool
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewNotifierSink creates a NotifierSink. An empty stages list forwards only
// summaries.
func NewNotifierSink(n Notifier, stages []string) *NotifierSink {
	set := make(map[domain.ProgressStage]bool, len(stages))
	for _, s := range stages {
		set[domain.ProgressStage(s)] = true
	}
	if len(set) == 0 {
		set[domain.StageSummary] = true
	}
	return &NotifierSink{notifier: n, stages: set, timeout: 10 * time.Second}
}

func (s *NotifierSink) Progress(ctx context.Context, ev domain.ProgressEvent) {
	if !s.stages[ev.Stage] {
		return
	}
	title := fmt.Sprintf("swap %s: %s", shortID(ev.TraceID), ev.Stage)
	msg := ev.Message
	if ev.ExplorerURL != "" {
		msg += "\n" + ev.ExplorerURL
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		// Failures are logged by the notifier.
		_ = s.notifier.Notify(sendCtx, string(ev.Stage), title, msg)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *NotifierSink) Wait() { s.wg.Wait() }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
