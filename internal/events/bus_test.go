// internal/events/bus_test.go
package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBus_PublishAndSubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	}()

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{})

	bus.SubscribeFunc(PositionOpened, func(_ context.Context, e Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		close(done)
		return nil
	})

	err := bus.Publish(PositionOpenedEvent{
		BaseEvent:       NewBase(PositionOpened),
		WalletAddress:   "0xA",
		PositionID:      "42",
		TransactionHash: "0xH",
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	opened, ok := received[0].(PositionOpenedEvent)
	require.True(t, ok)
	assert.Equal(t, "0xA", opened.WalletAddress)
	assert.Equal(t, "42", opened.PositionID)
	assert.Equal(t, PositionOpened, opened.Type())
	assert.False(t, opened.Timestamp().IsZero())
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var calls int
	bus.SubscribeFunc(OperationFailed, func(_ context.Context, e Event) error {
		calls++
		return nil
	})

	require.NoError(t, bus.PublishSync(context.Background(), OperationStartedEvent{
		BaseEvent: NewBase(OperationStarted),
		Operation: "open_position",
	}))
	assert.Zero(t, calls, "handler must not see other event types")

	require.NoError(t, bus.PublishSync(context.Background(), OperationFailedEvent{
		BaseEvent: NewBase(OperationFailed),
		Operation: "open_position",
		ErrorKind: "user_rejected",
	}))
	assert.Equal(t, 1, calls)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var calls int
	sub := bus.SubscribeFunc(ContractDeployed, func(_ context.Context, e Event) error {
		calls++
		return nil
	})

	event := ContractDeployedEvent{BaseEvent: NewBase(ContractDeployed), WalletAddress: "0xA"}
	require.NoError(t, bus.PublishSync(context.Background(), event))
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), event))

	assert.Equal(t, 1, calls)
}

func TestBus_PublishAfterShutdown(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	err := bus.Publish(OperationStartedEvent{BaseEvent: NewBase(OperationStarted)})
	assert.Error(t, err)
}
