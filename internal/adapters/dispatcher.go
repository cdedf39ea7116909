package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDispatcherClosed は停止済みのディスパッチャーに投入されたことを示します。
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// TaskRunner はジョブ 1 件を最後まで実行するコンポーネントです (pipeline.Orchestrator が実装します)。
type TaskRunner interface {
	Run(ctx context.Context, taskID string) error
}

// LocalDispatcher はジョブごとに 1 つの goroutine を起動するプロセス内ディスパッチャーです。
// Shutdown で実行中のワーカーにキャンセルを伝え、終了を待ちます。
type LocalDispatcher struct {
	mu      sync.Mutex
	runner  TaskRunner
	running map[string]struct{}
	closed  bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalDispatcher は LocalDispatcher を作成します。runner は Attach で後から設定します。
func NewLocalDispatcher() *LocalDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		running: make(map[string]struct{}),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Attach はワーカーが呼び出す runner を設定します。
// オーケストレーター自身がディスパッチャーに依存するため、構築後に結び付けます。
func (d *LocalDispatcher) Attach(runner TaskRunner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runner = runner
}

// Dispatch はジョブのワーカーを起動してすぐに戻ります。同じジョブがすでに実行中なら何もしません。
func (d *LocalDispatcher) Dispatch(ctx context.Context, taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.runner == nil {
		return fmt.Errorf("dispatcher has no runner attached")
	}
	if _, ok := d.running[taskID]; ok {
		slog.InfoContext(ctx, "Task already running, dispatch skipped", "task_id", taskID)
		return nil
	}

	d.running[taskID] = struct{}{}
	d.wg.Add(1)
	runner := d.runner
	go func() {
		defer d.wg.Done()
		defer d.release(taskID)

		if err := runner.Run(d.baseCtx, taskID); err != nil {
			slog.Error("Task execution ended with error", "task_id", taskID, "error", err)
		}
	}()
	return nil
}

func (d *LocalDispatcher) release(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, taskID)
}

// Running は実行中のジョブ数を返します。
func (d *LocalDispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// Shutdown は新規投入を止め、実行中のワーカーをキャンセルして終了を待ちます。
// 中断されたジョブは終端状態にならず、次回起動時に再開されます。
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "All workers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers did not stop in time: %w", ctx.Err())
	}
}
