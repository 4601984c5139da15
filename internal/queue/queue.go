package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lexchat/internal/retry"
)

// TaskType names a category of background work.
type TaskType string

// TaskTypeIngest runs the full ingestion pipeline for one document.
const TaskTypeIngest TaskType = "ingest"

// Task is one unit of background work. Attempts and NotBefore travel with
// the task so redelivery state survives the broker round trip.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Type        TaskType  `json:"type"`
	Payload     []byte    `json:"payload"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	NotBefore   time.Time `json:"not_before"`
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry retries Enqueue with exponential backoff. It returns the
// last enqueue error once the attempts are spent, or the context error if
// the caller gives up first.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = q.Enqueue(ctx, task); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return fmt.Errorf("enqueue %s task: %w", task.Type, lastErr)
}
