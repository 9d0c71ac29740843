package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// AsynqPublisher enqueues domain events as asynq tasks so the worker process
// can fan them out to downstream consumers (accounting, notifications).
type AsynqPublisher struct {
	client *asynq.Client
	queue  string
	logger *slog.Logger
}

// NewAsynqPublisher constructs a publisher backed by an asynq client.
func NewAsynqPublisher(client *asynq.Client, queue string, logger *slog.Logger) *AsynqPublisher {
	return &AsynqPublisher{client: client, queue: queue, logger: logger}
}

// Publish serializes the payload and enqueues a task typed after the event name.
func (p *AsynqPublisher) Publish(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", name, err)
	}
	task := asynq.NewTask(name, data)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue)); err != nil {
		p.logger.Warn("event enqueue failed", slog.String("event", name), slog.Any("error", err))
		return fmt.Errorf("events: enqueue %s: %w", name, err)
	}
	return nil
}
