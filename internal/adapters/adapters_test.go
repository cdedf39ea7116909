package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	mu      sync.Mutex
	started chan string
	calls   []string
	block   bool
}

func newBlockingRunner(block bool) *blockingRunner {
	return &blockingRunner{started: make(chan string, 8), block: block}
}

func (r *blockingRunner) Run(ctx context.Context, taskID string) error {
	r.mu.Lock()
	r.calls = append(r.calls, taskID)
	r.mu.Unlock()
	r.started <- taskID
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestLocalDispatcher_RunsTask(t *testing.T) {
	runner := newBlockingRunner(false)
	d := NewLocalDispatcher()
	d.Attach(runner)

	require.NoError(t, d.Dispatch(context.Background(), "task-1"))

	select {
	case id := <-runner.started:
		assert.Equal(t, "task-1", id)
	case <-time.After(time.Second):
		t.Fatal("runner was not started")
	}
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestLocalDispatcher_SkipsDuplicateWhileRunning(t *testing.T) {
	runner := newBlockingRunner(true)
	d := NewLocalDispatcher()
	d.Attach(runner)

	require.NoError(t, d.Dispatch(context.Background(), "task-1"))
	<-runner.started
	require.NoError(t, d.Dispatch(context.Background(), "task-1"))
	assert.Equal(t, 1, d.Running())

	require.NoError(t, d.Shutdown(context.Background()))
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.calls, 1)
}

func TestLocalDispatcher_ShutdownCancelsWorkersAndRejectsNewTasks(t *testing.T) {
	runner := newBlockingRunner(true)
	d := NewLocalDispatcher()
	d.Attach(runner)

	require.NoError(t, d.Dispatch(context.Background(), "task-1"))
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.Equal(t, 0, d.Running())

	err := d.Dispatch(context.Background(), "task-2")
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestLocalDispatcher_RequiresRunner(t *testing.T) {
	d := NewLocalDispatcher()
	assert.Error(t, d.Dispatch(context.Background(), "task-1"))
}

type fakeEnqueuer struct {
	payloads []domain.GenerateTaskPayload
	err      error
	closed   bool
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, payload domain.GenerateTaskPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

func TestCloudTasksDispatcher(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewCloudTasksDispatcherWith(enq)

	require.NoError(t, d.Dispatch(context.Background(), "task-9"))
	assert.Equal(t, []domain.GenerateTaskPayload{{TaskID: "task-9"}}, enq.payloads)

	enq.err = errors.New("queue unavailable")
	err := d.Dispatch(context.Background(), "task-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task-10")

	require.NoError(t, d.Close())
	assert.True(t, enq.closed)
}

func TestTaskExecutor(t *testing.T) {
	runner := newBlockingRunner(false)
	exec := NewTaskExecutor(runner)

	require.NoError(t, exec.Execute(context.Background(), domain.GenerateTaskPayload{TaskID: "task-3"}))
	assert.Equal(t, "task-3", <-runner.started)

	err := exec.Execute(context.Background(), domain.GenerateTaskPayload{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

type recordingSender struct {
	headers []string
	bodies  []string
	err     error
}

func (s *recordingSender) SendTextWithHeader(_ context.Context, header, text string) error {
	s.headers = append(s.headers, header)
	s.bodies = append(s.bodies, text)
	return s.err
}

func TestSlackAdapter_Notify(t *testing.T) {
	sender := &recordingSender{}
	a := NewSlackAdapterWith(sender)

	req := domain.NotificationRequest{
		TaskID:           "task-1",
		OwnerID:          "kid-7",
		OutputCategory:   "graphic-novel",
		TargetTitle:      "adventure / 4 pages",
		PlaceholderPages: 2,
	}
	require.NoError(t, a.Notify(context.Background(), "https://example.com/api/graphic-novels/task-1", "gs://bucket/output/task-1/pages/page_01.png", req))

	require.Len(t, sender.bodies, 1)
	body := sender.bodies[0]
	assert.Contains(t, body, "adventure / 4 pages")
	assert.Contains(t, body, "https://example.com/api/graphic-novels/task-1")
	assert.Contains(t, body, "https://console.cloud.google.com/storage/browser/bucket/output/task-1/pages/page_01.png")
	assert.Contains(t, body, "2 ページは代替画像")
}

func TestSlackAdapter_NotifyError(t *testing.T) {
	sender := &recordingSender{}
	a := NewSlackAdapterWith(sender)

	req := domain.NotificationRequest{TaskID: "task-2", OutputCategory: "error-report", TargetTitle: "funny / 8 pages"}
	require.NoError(t, a.NotifyError(context.Background(), errors.New("cancelled by user"), req))

	require.Len(t, sender.bodies, 1)
	assert.Contains(t, sender.bodies[0], "cancelled by user")
	assert.Contains(t, sender.bodies[0], "error-report")

	sender.err = errors.New("slack down")
	assert.Error(t, a.NotifyError(context.Background(), errors.New("boom"), req))
}

func TestSlackAdapter_DisabledWithoutWebhook(t *testing.T) {
	a, err := NewSlackAdapter(nil, "")
	require.NoError(t, err)

	assert.NoError(t, a.Notify(context.Background(), "", "", domain.NotificationRequest{}))
	assert.NoError(t, a.NotifyError(context.Background(), errors.New("x"), domain.NotificationRequest{}))
}
