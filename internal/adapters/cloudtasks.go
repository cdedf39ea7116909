package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/domain"

	"github.com/shouni/gcp-kit/tasks"
)

// TaskEnqueuer は Cloud Tasks キューへの投入口です (gcp-kit の tasks.Enqueuer が実装します)。
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload domain.GenerateTaskPayload) error
	Close() error
}

// CloudTasksDispatcher はジョブ ID を Cloud Tasks にエンキューします。
// ワーカーは /tasks/generate で配信を受け、TaskExecutor 経由で実行します。
type CloudTasksDispatcher struct {
	enqueuer TaskEnqueuer
}

// NewCloudTasksDispatcher は設定から Cloud Tasks エンキューアを初期化します。
func NewCloudTasksDispatcher(ctx context.Context, cfg *config.Config) (*CloudTasksDispatcher, error) {
	workerURL, err := url.JoinPath(cfg.ServiceURL, "/tasks/generate")
	if err != nil {
		return nil, fmt.Errorf("failed to build worker URL: %w", err)
	}

	enqueuer, err := tasks.NewEnqueuer[domain.GenerateTaskPayload](ctx, tasks.Config{
		ProjectID:           cfg.ProjectID,
		LocationID:          cfg.LocationID,
		QueueID:             cfg.QueueID,
		WorkerURL:           workerURL,
		ServiceAccountEmail: cfg.ServiceAccountEmail,
		Audience:            cfg.TaskAudienceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud tasks enqueuer: %w", err)
	}
	return NewCloudTasksDispatcherWith(enqueuer), nil
}

// NewCloudTasksDispatcherWith は既存のエンキューアを使う Dispatcher を作成します。
func NewCloudTasksDispatcherWith(enqueuer TaskEnqueuer) *CloudTasksDispatcher {
	return &CloudTasksDispatcher{enqueuer: enqueuer}
}

// Dispatch はジョブをキューに積みます。実行はワーカー側で非同期に行われます。
func (d *CloudTasksDispatcher) Dispatch(ctx context.Context, taskID string) error {
	if err := d.enqueuer.Enqueue(ctx, domain.GenerateTaskPayload{TaskID: taskID}); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskID, err)
	}
	slog.InfoContext(ctx, "Task enqueued", "task_id", taskID)
	return nil
}

// Close はエンキューアの接続を閉じます。
func (d *CloudTasksDispatcher) Close() error {
	return d.enqueuer.Close()
}

// TaskExecutor は Cloud Tasks のペイロードを受け取り、ジョブを実行します。
// gcp-kit の worker.Handler に渡す実行者です。
type TaskExecutor struct {
	runner TaskRunner
}

// NewTaskExecutor は TaskExecutor を作成します。
func NewTaskExecutor(runner TaskRunner) *TaskExecutor {
	return &TaskExecutor{runner: runner}
}

// Execute はジョブを同期的に実行します。エラーを返すと Cloud Tasks が再配信し、
// 再配信されたジョブは保存済みの状態から再開されます。
func (e *TaskExecutor) Execute(ctx context.Context, payload domain.GenerateTaskPayload) error {
	if payload.TaskID == "" {
		return fmt.Errorf("%w: task id is empty", domain.ErrInvalidInput)
	}
	return e.runner.Run(ctx, payload.TaskID)
}
