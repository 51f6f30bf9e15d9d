package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

// Worker runs dispatch tasks taken off the asynq queue.
type Worker struct {
	posts      repository.PostRepository
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewWorker(posts repository.PostRepository, dispatcher *Dispatcher, log *slog.Logger) *Worker {
	return &Worker{
		posts:      posts,
		dispatcher: dispatcher,
		log:        log.With("component", "queue_worker"),
	}
}

func (w *Worker) HandleDispatchPostTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode dispatch payload: %v: %w", err, asynq.SkipRetry)
	}

	_, err := w.DispatchByID(ctx, payload.PostID)
	return err
}

// DispatchByID loads a post and dispatches it if it is still queued. A post
// in any other status was already handled and is skipped.
func (w *Worker) DispatchByID(ctx context.Context, postID string) (*models.Post, error) {
	post, err := w.posts.GetByID(ctx, postID)
	if err != nil {
		w.log.Info(err.Error(), "post_id", postID)
		return nil, err
	}

	if post.Status != models.PostStatusQueued {
		w.log.Info("skipping dispatch task", "post_id", postID, "status", post.Status)
		return post, nil
	}
	return w.dispatcher.Dispatch(ctx, post)
}

// NewServeMux routes dispatch tasks to w.
func (w *Worker) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatchPost, w.HandleDispatchPostTask)
	return mux
}
