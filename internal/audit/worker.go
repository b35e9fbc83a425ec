package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from a channel and forwards them to a sink.
// It decouples the finalize path from sink latency; a slow Kafka broker must
// never stall a checkout.
type Worker struct {
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run processes events until the context is cancelled. Sink failures are
// logged and dropped; audit delivery is best-effort by design of the sink.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"event_id", event.ID,
					"sale_id", event.SaleID,
					"error", err,
				)
			}
		}
	}
}

// ChannelSink publishes events onto a channel for a Worker to drain. Emit
// drops events rather than blocking when the buffer is full.
type ChannelSink struct {
	ch     chan<- Event
	logger *slog.Logger
}

func NewChannelSink(ch chan<- Event, logger *slog.Logger) *ChannelSink {
	return &ChannelSink{ch: ch, logger: logger}
}

func (s *ChannelSink) Append(ctx context.Context, event Event) error {
	select {
	case s.ch <- event:
		return nil
	default:
		s.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"event_id", event.ID,
			"sale_id", event.SaleID,
		)
		return nil
	}
}
