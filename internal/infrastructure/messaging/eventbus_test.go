package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nivo-app/nivo-hub/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(Config{AsyncMode: false})
}

func TestInMemoryEventBus_DeliversToSubscribers(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var received []shared.Event
	err := bus.Subscribe(shared.EventDayCompleted, func(ctx context.Context, event shared.Event) error {
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)

	event := shared.NewBaseEvent(shared.EventDayCompleted, "u1")
	require.NoError(t, bus.Publish(context.Background(), event))

	require.Len(t, received, 1)
	assert.Equal(t, shared.EventDayCompleted, received[0].EventType())
	assert.Equal(t, "u1", received[0].AggregateID())
}

func TestInMemoryEventBus_TypeIsolation(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var calls int
	require.NoError(t, bus.Subscribe(shared.EventSubscriptionLapsed, func(ctx context.Context, event shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventDayCompleted, "u1")))
	assert.Equal(t, 0, calls)

	require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventSubscriptionLapsed, "u1")))
	assert.Equal(t, 1, calls)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var calls int
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, event shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventDayCompleted, "u1")))
	require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventRankAdvanced, "u1")))

	assert.Equal(t, 2, calls)
}

func TestInMemoryEventBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var secondCalled bool
	require.NoError(t, bus.Subscribe(shared.EventDayCompleted, func(ctx context.Context, event shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventDayCompleted, func(ctx context.Context, event shared.Event) error {
		secondCalled = true
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventDayCompleted, "u1")))
	assert.True(t, secondCalled)

	snapshot := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snapshot.TotalExecutions)
	assert.Equal(t, int64(1), snapshot.Failures)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 4})

	var mu sync.Mutex
	var calls int
	require.NoError(t, bus.Subscribe(shared.EventDayCompleted, func(ctx context.Context, event shared.Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventDayCompleted, "u1")))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, calls)
}

func TestInMemoryEventBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), shared.NewBaseEvent(shared.EventDayCompleted, "u1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventDayCompleted, func(ctx context.Context, event shared.Event) error {
		return nil
	}), ErrEventBusClosed)

	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestInMemoryEventBus_NilHandlerRejected(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventDayCompleted, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}
