package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/mock/gomock"

	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/publisher"
	"github.com/maheshrc27/autopost/pkg/logger"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	ids   []string
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			f.ids = append(f.ids, o.Value().(string))
		}
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func claimedPost(id string, at time.Time) *models.Post {
	return &models.Post{ID: id, Status: models.PostStatusQueued, UpdatedAt: at}
}

func TestEnqueuePost(t *testing.T) {
	enq := &fakeEnqueuer{}
	post := claimedPost("p1", time.Unix(1700000000, 0))
	if err := EnqueuePost(context.Background(), enq, post); err != nil {
		t.Fatalf("EnqueuePost: %v", err)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeDispatchPost {
		t.Fatalf("tasks = %v", enq.tasks)
	}
	if len(enq.ids) != 1 || enq.ids[0] != DispatchTaskID(post) {
		t.Errorf("task ids = %v, want [%s]", enq.ids, DispatchTaskID(post))
	}

	var payload DispatchPostPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &payload); err != nil || payload.PostID != "p1" {
		t.Errorf("payload = %+v, %v", payload, err)
	}
}

func TestDispatchTaskID_ChangesPerClaim(t *testing.T) {
	first := claimedPost("p1", time.Unix(1700000000, 0))
	again := claimedPost("p1", first.UpdatedAt.Add(time.Microsecond))

	if DispatchTaskID(first) == DispatchTaskID(again) {
		t.Errorf("two claims of p1 share task id %q", DispatchTaskID(first))
	}
	if DispatchTaskID(first) != DispatchTaskID(claimedPost("p1", first.UpdatedAt)) {
		t.Error("the same claim produced different task ids")
	}
}

func TestEnqueuePost_DuplicateIsNotAnError(t *testing.T) {
	post := claimedPost("p1", time.Unix(1700000000, 0))
	if err := EnqueuePost(context.Background(), &fakeEnqueuer{err: asynq.ErrTaskIDConflict}, post); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
	boom := errors.New("redis down")
	if err := EnqueuePost(context.Background(), &fakeEnqueuer{err: boom}, post); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestWorker_HandleDispatchPostTask(t *testing.T) {
	f := newFixture(t, testConfig())
	f.queuedPost(t, "p1")
	w := NewWorker(f.posts, f.dispatcher, logger.Discard())

	f.resolver.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).Return(xCredentials(), nil)
	f.pub.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(&publisher.Result{ProviderPostID: "tw_1"}, nil).Times(1)

	payload, _ := json.Marshal(DispatchPostPayload{PostID: "p1"})
	if err := w.HandleDispatchPostTask(context.Background(), asynq.NewTask(TaskTypeDispatchPost, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	// redelivery of the same task must not submit again
	if err := w.HandleDispatchPostTask(context.Background(), asynq.NewTask(TaskTypeDispatchPost, payload)); err != nil {
		t.Fatalf("second handle: %v", err)
	}

	post, err := f.posts.GetByID(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if post.Status != models.PostStatusPosted {
		t.Errorf("status = %s, want posted", post.Status)
	}
}

func TestWorker_BadPayloadSkipsRetry(t *testing.T) {
	f := newFixture(t, testConfig())
	w := NewWorker(f.posts, f.dispatcher, logger.Discard())

	err := w.HandleDispatchPostTask(context.Background(), asynq.NewTask(TaskTypeDispatchPost, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("err = %v, want SkipRetry", err)
	}
}
