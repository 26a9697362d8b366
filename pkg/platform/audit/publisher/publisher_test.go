package publisher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/audit/store/memory"
	"intake/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func (failingStore) ListByRecord(context.Context, id.RecordID) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_RecordsInOrder(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	recordID := id.NewRecordID()
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")

	pub.Record(ctx, recordID, audit.KindSubmitted, audit.Actor{Kind: audit.ActorApplicant}, nil)
	pub.Record(ctx, recordID, audit.KindLocked, audit.Actor{Kind: audit.ActorAdmin}, map[string]string{"by": "admin"})

	events, err := pub.List(ctx, recordID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.KindSubmitted, events[0].Kind)
	assert.Equal(t, audit.KindLocked, events[1].Kind)
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Equal(t, "req-1", events[1].RequestID)
	assert.Equal(t, "admin", events[1].Metadata["by"])
}

func TestPublisher_UsesRequestTime(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	recordID := id.NewRecordID()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	pub.Record(requestcontext.WithTime(context.Background(), fixed), recordID, audit.KindWithdrawn, audit.Actor{Kind: audit.ActorAdmin}, nil)

	events, err := store.ListByRecord(context.Background(), recordID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].CreatedAt)
}

func TestPublisher_FailureIsSwallowedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_failures_total"})
	pub := NewPublisher(failingStore{},
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithFailureCounter(counter),
	)

	assert.NotPanics(t, func() {
		pub.Record(context.Background(), id.NewRecordID(), audit.KindLocked, audit.Actor{Kind: audit.ActorAdmin}, nil)
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
	assert.Contains(t, buf.String(), "failed to append audit event")
}

func TestInMemoryStore_Purge(t *testing.T) {
	store := memory.NewInMemoryStore()
	keep, drop := id.NewRecordID(), id.NewRecordID()
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, audit.Event{RecordID: keep, Kind: audit.KindSubmitted}))
	require.NoError(t, store.Append(ctx, audit.Event{RecordID: drop, Kind: audit.KindSubmitted}))

	store.Purge(drop)

	dropped, err := store.ListByRecord(ctx, drop)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	kept, err := store.ListByRecord(ctx, keep)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
