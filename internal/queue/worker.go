package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/crosspost/internal/engine"
)

type Dispatcher interface {
	DispatchPost(ctx context.Context, postID string) (*engine.Outcome, error)
}

// Worker runs the dispatch of a post when its handle fires.
type Worker struct {
	dispatcher Dispatcher
}

func NewWorker(d Dispatcher) *Worker {
	return &Worker{dispatcher: d}
}

func (w *Worker) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	payload, err := parseDispatchTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	out, err := w.dispatcher.DispatchPost(ctx, payload.PostID)
	if err != nil {
		slog.Error("dispatch task failed", "post_id", payload.PostID, "error", err)
		return fmt.Errorf("dispatching post %s: %v: %w", payload.PostID, err, asynq.SkipRetry)
	}
	if out == nil {
		slog.Info("dispatch task skipped", "post_id", payload.PostID)
	}
	return nil
}

// Mux routes dispatch tasks to the worker.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatchPost, w.HandleDispatchTask)
	return mux
}
