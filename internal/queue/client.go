package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const queueName = "default"

// Client enqueues and deletes dispatch handles. The task id is the handle.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

func (c *Client) Enqueue(ctx context.Context, postID, taskID string, at time.Time) error {
	task, err := newDispatchTask(postID)
	if err != nil {
		return err
	}

	// A failed dispatch is left to the periodic sweep instead of asynq retries.
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.ProcessAt(at),
		asynq.Queue(queueName),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("dispatch task scheduled", "post_id", postID, "task_id", taskID, "process_at", at)
	return nil
}

func (c *Client) Cancel(ctx context.Context, taskID string) error {
	err := c.inspector.DeleteTask(queueName, taskID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
