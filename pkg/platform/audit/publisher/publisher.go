// Package publisher is the single entry point services use to append to the
// audit trail. Appends are best-effort: a failure is logged and counted but
// never returned, so it cannot roll back the transition being recorded.
package publisher

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
)

// Publisher appends events to an audit.Store.
type Publisher struct {
	store    audit.Store
	logger   *slog.Logger
	failures prometheus.Counter
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used to report failed appends.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithFailureCounter sets the counter incremented on every failed append.
func WithFailureCounter(c prometheus.Counter) Option {
	return func(p *Publisher) {
		p.failures = c
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record appends one event for recordID. The request id and timestamp are
// taken from ctx when present.
func (p *Publisher) Record(ctx context.Context, recordID id.RecordID, kind audit.Kind, actor audit.Actor, metadata map[string]string) {
	event := audit.Event{
		RecordID:  recordID,
		Kind:      kind,
		Actor:     actor,
		Metadata:  metadata,
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := p.store.Append(ctx, event); err != nil {
		if p.failures != nil {
			p.failures.Inc()
		}
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"error", err,
			"record_id", recordID.String(),
			"kind", string(kind),
			"request_id", event.RequestID,
		)
	}
}

// List returns the trail of one record in insert order.
func (p *Publisher) List(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	return p.store.ListByRecord(ctx, recordID)
}
