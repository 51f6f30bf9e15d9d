package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/autopost/internal/models"
)

const TaskTypeDispatchPost = "dispatch:post"

type DispatchPostPayload struct {
	PostID string `json:"post_id"`
}

// Enqueuer is the part of *asynq.Client used to hand claimed posts to workers.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DispatchTaskID identifies one claim of a post. A post that is failed and
// claimed again gets a new id, so a task archived for an earlier claim never
// blocks the new one.
func DispatchTaskID(post *models.Post) string {
	return fmt.Sprintf("%s:%d", post.ID, post.UpdatedAt.UnixNano())
}

// EnqueuePost hands a claimed post to the asynq workers. Enqueueing the same
// claim twice is a no-op.
func EnqueuePost(ctx context.Context, client Enqueuer, post *models.Post) error {
	taskPayload, err := json.Marshal(DispatchPostPayload{PostID: post.ID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeDispatchPost, taskPayload)
	taskID := DispatchTaskID(post)

	// retries happen inside the dispatcher; asynq must not resubmit
	_, err = client.EnqueueContext(ctx, task, asynq.TaskID(taskID), asynq.MaxRetry(0))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			slog.Info("dispatch task already enqueued", "post_id", post.ID, "task_id", taskID)
			return nil
		}
		return err
	}

	slog.Debug("dispatch task enqueued", "post_id", post.ID, "task_id", taskID)
	return nil
}
