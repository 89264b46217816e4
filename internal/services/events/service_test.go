package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rogo/internal/common"
	"github.com/ternarybob/rogo/internal/interfaces"
)

func TestSubscribeRejectsNilHandler(t *testing.T) {
	svc := NewService(common.GetLogger())
	err := svc.Subscribe(interfaces.EventDocumentsLoaded, nil)
	require.Error(t, err)
}

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())

	var calls int32
	var payload atomic.Value
	for i := 0; i < 3; i++ {
		err := svc.Subscribe(interfaces.EventAnswerGenerated, func(ctx context.Context, event interfaces.Event) error {
			atomic.AddInt32(&calls, 1)
			payload.Store(event.Payload)
			return nil
		})
		require.NoError(t, err)
	}

	err := svc.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventAnswerGenerated,
		Payload: "done",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "done", payload.Load())
}

func TestPublishSyncReportsHandlerFailures(t *testing.T) {
	svc := NewService(common.GetLogger())

	require.NoError(t, svc.Subscribe(interfaces.EventSessionReset, func(ctx context.Context, event interfaces.Event) error {
		return nil
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventSessionReset, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("boom")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSessionReset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 handlers failed")
}

func TestPublishIsAsynchronous(t *testing.T) {
	svc := NewService(common.GetLogger())

	done := make(chan struct{})
	require.NoError(t, svc.Subscribe(interfaces.EventDocumentsLoaded, func(ctx context.Context, event interfaces.Event) error {
		close(done)
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventDocumentsLoaded}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	svc := NewService(common.GetLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSessionReset}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSessionReset}))
}

func TestEventTypeIsolation(t *testing.T) {
	svc := NewService(common.GetLogger())

	var calls int32
	require.NoError(t, svc.Subscribe(interfaces.EventDocumentsLoaded, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventAnswerGenerated}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestCloseStopsDelivery(t *testing.T) {
	svc := NewService(common.GetLogger())

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, svc.Subscribe(interfaces.EventSessionReset, func(ctx context.Context, event interfaces.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	}))

	require.NoError(t, svc.Close())

	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSessionReset}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSessionReset}))

	mu.Lock()
	assert.Equal(t, 0, delivered)
	mu.Unlock()

	err := svc.Subscribe(interfaces.EventSessionReset, func(ctx context.Context, event interfaces.Event) error {
		return nil
	})
	require.Error(t, err)
}
