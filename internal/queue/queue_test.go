package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnqueueWithRetry(t *testing.T) {
	ctx := context.Background()
	task := Task{Type: TaskTypeIngest, Payload: []byte(`{"document_id":"x"}`)}

	t.Run("first attempt succeeds", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		require.NoError(t, EnqueueWithRetry(ctx, q, task, 3, time.Millisecond))
		assert.Len(t, q.Enqueued(), 1)
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(assert.AnError).Once()
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		require.NoError(t, EnqueueWithRetry(ctx, q, task, 3, time.Millisecond))
		assert.Len(t, q.Enqueued(), 2)
	})

	t.Run("returns last error once attempts are spent", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(assert.AnError)

		err := EnqueueWithRetry(ctx, q, task, 3, time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Len(t, q.Enqueued(), 3)
	})

	t.Run("cancelled context stops the retry loop", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(assert.AnError)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := EnqueueWithRetry(cancelled, q, task, 5, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		q := new(MockQueue)
		q.On("Enqueue", mock.Anything, task).Return(nil).Once()

		require.NoError(t, EnqueueWithRetry(ctx, q, task, 0, time.Millisecond))
		q.AssertNumberOfCalls(t, "Enqueue", 1)
	})
}
