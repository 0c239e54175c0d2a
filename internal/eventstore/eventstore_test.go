package eventstore

import (
	"context"
	"fmt"
	"testing"

	"bookstore/internal/database/pgtest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	Message string `json:"message"`
}

func newTestEvent(t testing.TB, msg string) Event {
	t.Helper()
	evt, err := NewEvent("TestEvent", testEvent{Message: msg})
	require.NoError(t, err)
	return evt
}

func TestEventStore(t *testing.T) {
	db := pgtest.Open(t)
	store := NewEventStore(db)
	ctx := context.Background()

	t.Run("append and load in version order", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, store.AppendEvents(ctx, id, "order", 0, []Event{newTestEvent(t, "a"), newTestEvent(t, "b")}))
		require.NoError(t, store.AppendEvents(ctx, id, "order", 2, []Event{newTestEvent(t, "c")}))

		events, err := store.LoadEvents(ctx, id)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, e := range events {
			assert.Equal(t, i+1, e.Version)
			assert.Equal(t, "order", e.AggregateType)
		}
		assert.JSONEq(t, `{"message":"c"}`, string(events[2].EventData))

		version, err := store.GetCurrentVersion(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, version)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, store.AppendEvents(ctx, id, "order", 0, []Event{newTestEvent(t, "a")}))

		err := store.AppendEvents(ctx, id, "order", 0, []Event{newTestEvent(t, "b")})
		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.ErrorIs(t, store.AppendEvents(ctx, id, "order", -1, nil), ErrInvalidVersion)
	})

	t.Run("metadata round trips", func(t *testing.T) {
		id := uuid.New()
		evt := newTestEvent(t, "a")
		evt.Metadata = map[string]interface{}{"actor": "admin"}
		require.NoError(t, store.AppendEvents(ctx, id, "order", 0, []Event{evt}))

		events, err := store.LoadEvents(ctx, id)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "admin", events[0].Metadata["actor"])
	})

	t.Run("unknown aggregate has no history", func(t *testing.T) {
		events, err := store.LoadEvents(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func BenchmarkAppendEvents(b *testing.B) {
	store := NewEventStore(pgtest.Bench(b))

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		events := []Event{newTestEvent(b, fmt.Sprintf("event %d", i))}
		b.StartTimer()

		if err := store.AppendEvents(context.Background(), uuid.New(), "order", 0, events); err != nil {
			b.Fatalf("AppendEvents failed: %v", err)
		}
	}
}

func BenchmarkLoadEvents(b *testing.B) {
	store := NewEventStore(pgtest.Bench(b))

	aggregateID := uuid.New()
	for i := 0; i < 10; i++ {
		events := []Event{newTestEvent(b, fmt.Sprintf("event %d", i))}
		if err := store.AppendEvents(context.Background(), aggregateID, "order", i, events); err != nil {
			b.Fatalf("failed to setup events for benchmark: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.LoadEvents(context.Background(), aggregateID); err != nil {
			b.Fatalf("LoadEvents failed: %v", err)
		}
	}
}
