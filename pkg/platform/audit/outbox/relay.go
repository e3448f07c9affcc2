// Package outbox forwards events written to the Postgres audit outbox to a
// downstream audit.Store such as Kafka.
package outbox

import (
	"context"
	"log/slog"
	"time"

	audit "outbreak/pkg/platform/audit"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 100
)

// Source is the outbox side of the relay.
type Source interface {
	Pending(ctx context.Context, limit int) ([]audit.Event, error)
	MarkPublished(ctx context.Context, eventID string) error
}

type Relay struct {
	source    Source
	sink      audit.Store
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(source Source, sink audit.Store, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		sink:      sink,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards pending events every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "audit outbox flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush forwards one batch in outbox order and returns how many events were
// published. It stops at the first sink failure so ordering is preserved.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.source.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, event := range events {
		if err := r.sink.Append(ctx, event); err != nil {
			return published, err
		}
		if err := r.source.MarkPublished(ctx, event.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
