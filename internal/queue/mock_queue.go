package queue

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockQueue is a mock implementation of Queue using testify/mock. It also
// records enqueued tasks so tests can inspect payloads after the fact.
type MockQueue struct {
	mock.Mock

	mu       sync.Mutex
	enqueued []Task
}

func (m *MockQueue) Enqueue(ctx context.Context, task Task) error {
	m.mu.Lock()
	m.enqueued = append(m.enqueued, task)
	m.mu.Unlock()
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	args := m.Called(ctx, taskType, handler)
	return args.Error(0)
}

// Enqueued returns a copy of every task passed to Enqueue, in order.
func (m *MockQueue) Enqueued() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.enqueued))
	copy(out, m.enqueued)
	return out
}
