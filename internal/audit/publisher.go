package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events for persistence or forwarding. Implementations
// include the in-memory sink (tests, single node) and the Kafka sink.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and writes
// through a Sink so tests can swap implementations easily.
type Publisher struct {
	sink Sink
}

func NewPublisher(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.sink.Append(ctx, event)
}
