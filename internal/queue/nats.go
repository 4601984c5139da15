package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"lexchat/internal/retry"
)

const (
	subjectPrefix      = "lexchat.tasks."
	groupPrefix        = "lexchat-workers-"
	defaultMaxAttempts = 5
)

// NewNATS wraps a NATS connection as a Queue. Delivery is at-least-once;
// handlers must tolerate replays (the ingestion claim guard handles that for
// document tasks).
func NewNATS(log *slog.Logger, nc *nats.Conn) Queue {
	return &natsQueue{log: log, nc: nc}
}

type natsQueue struct {
	log *slog.Logger
	nc  *nats.Conn
}

func (q *natsQueue) Enqueue(_ context.Context, task Task) error {
	if task.Type == "" {
		return errors.New("task type required")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return q.nc.Publish(subjectPrefix+string(task.Type), body)
}

// Worker consumes tasks of one type until ctx is cancelled. Subscribers of
// the same type share a queue group, so each task lands on one worker.
func (q *natsQueue) Worker(ctx context.Context, taskType TaskType, handler Handler) error {
	sub, err := q.nc.QueueSubscribe(
		subjectPrefix+string(taskType),
		groupPrefix+string(taskType),
		func(msg *nats.Msg) { q.consume(ctx, msg, handler) },
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", taskType, err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func (q *natsQueue) consume(ctx context.Context, msg *nats.Msg, handler Handler) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		q.log.Error("dropping undecodable task", "subject", msg.Subject, "err", err)
		return
	}

	// Delayed redeliveries carry their own wake-up time.
	if wait := time.Until(task.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	if err := handler(ctx, task); err != nil {
		q.redeliver(ctx, task, err)
	}
}

func (q *natsQueue) redeliver(ctx context.Context, task Task, handlerErr error) {
	task.Attempts++
	if task.MaxAttempts == 0 {
		task.MaxAttempts = defaultMaxAttempts
	}
	log := q.log.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)

	if task.Attempts >= task.MaxAttempts {
		log.Error("task permanently failed", "err", handlerErr)
		return
	}
	task.NotBefore = time.Now().Add(retry.ExponentialBackoff(task.Attempts, time.Second))
	if err := q.Enqueue(ctx, task); err != nil {
		log.Error("failed to redeliver task", "original_err", handlerErr, "enqueue_err", err)
		return
	}
	log.Warn("task failed; redelivery scheduled", "err", handlerErr, "not_before", task.NotBefore)
}
