package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrShuttingDown は停止処理中に新しいジョブが投入されたことを示します。
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// errCancelled は利用者による中断です。
var errCancelled = errors.New("cancelled by user")

// Options はオーケストレーターの動作設定です。
type Options struct {
	// ServiceURL は通知に載せる公開 URL の基点です。
	ServiceURL string
	// StyleSuffix はすべてのページに付与する画風指定です。
	StyleSuffix string
	// RefundOnSetupFailure はレンダリング開始前の FAILED で返金するかどうかです。
	RefundOnSetupFailure bool
	// RefundOnRenderFailure はレンダリング開始後の FAILED で返金するかどうかです。
	RefundOnRenderFailure bool
	// JobTimeout は 1 ジョブの実行全体の上限です。0 の場合は無制限です。
	JobTimeout time.Duration
}

// Deps はオーケストレーターの依存関係です。Notifier と Metrics は省略できます。
type Deps struct {
	Store      TaskStore
	Ledger     Ledger
	Gate       SafetyGate
	Dispatcher Dispatcher
	Notifier   Notifier
	Metrics    Metrics
	Analyzer   *AssetAnalyzer
	Planner    *OutlinePlanner
	Writer     *Scriptwriter
	Renderer   *PageRenderer
	Stager     *AssetStager
}

// Orchestrator はジョブの受付と、ジョブごとのステージ実行 (状態機械) を担います。
type Orchestrator struct {
	store      TaskStore
	ledger     Ledger
	gate       SafetyGate
	dispatcher Dispatcher
	notifier   Notifier
	metrics    Metrics
	analyzer   *AssetAnalyzer
	planner    *OutlinePlanner
	writer     *Scriptwriter
	renderer   *PageRenderer
	stager     *AssetStager

	opts     Options
	validate *validator.Validate
	newID    func() string
	closing  atomic.Bool
}

// NewOrchestrator は依存関係を検証して Orchestrator を作成します。
func NewOrchestrator(d Deps, opts Options) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("pipeline: task store is required")
	case d.Ledger == nil:
		return nil, errors.New("pipeline: ledger is required")
	case d.Gate == nil:
		return nil, errors.New("pipeline: safety gate is required")
	case d.Dispatcher == nil:
		return nil, errors.New("pipeline: dispatcher is required")
	case d.Analyzer == nil || d.Planner == nil || d.Writer == nil || d.Renderer == nil || d.Stager == nil:
		return nil, errors.New("pipeline: all stages are required")
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	return &Orchestrator{
		store:      d.Store,
		ledger:     d.Ledger,
		gate:       d.Gate,
		dispatcher: d.Dispatcher,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		analyzer:   d.Analyzer,
		planner:    d.Planner,
		writer:     d.Writer,
		renderer:   d.Renderer,
		stager:     d.Stager,
		opts:       opts,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		newID:      uuid.NewString,
	}, nil
}

// Submit は入力検証、安全性チェック、クレジット予約、data: 素材の保存、レコード作成、ディスパッチの順に処理します。
// 安全性チェックとクレジット不足で拒否された場合、レコードは作られずタスク ID も返りません。
func (o *Orchestrator) Submit(ctx context.Context, req domain.CreateRequest) (*domain.Job, error) {
	if o.closing.Load() {
		return nil, ErrShuttingDown
	}
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if err := o.gate.Check(ctx, req.FreeTexts(), req.ImageRefs()); err != nil {
		return nil, err
	}

	cost := domain.CostFor(req.TotalPages)
	balance, err := o.ledger.Reserve(ctx, req.OwnerID, cost)
	if err != nil {
		return nil, err
	}

	id := o.newID()
	story := req.StoryRequest()
	if story.Assets, err = o.stager.Stage(ctx, id, story.Assets); err != nil {
		o.refund(context.WithoutCancel(ctx), req.OwnerID, cost, "asset staging failed")
		return nil, err
	}

	layout := domain.ParseLayout(req.Layout)
	job := &domain.Job{
		ID:            id,
		OwnerID:       req.OwnerID,
		Status:        domain.StatusPending,
		Vibe:          domain.ParseVibe(req.Vibe),
		Layout:        layout,
		TotalPages:    req.TotalPages,
		PanelsPerPage: layout.PanelsPerPage(),
		Cost:          cost,
		StatusMessage: "Waiting to start...",
		Request:       story,
	}
	if err := o.store.Create(ctx, job); err != nil {
		o.refund(context.WithoutCancel(ctx), job.OwnerID, cost, "task record creation failed")
		return nil, fmt.Errorf("failed to create task record: %w", err)
	}
	slog.InfoContext(ctx, "Task created", "task_id", job.ID, "owner_id", job.OwnerID, "cost", cost, "balance", balance)

	if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
		cause := fmt.Errorf("failed to dispatch task: %w", err)
		o.failJob(context.WithoutCancel(ctx), job.ID, cause)
		return nil, cause
	}
	return job, nil
}

// Run は 1 ジョブを最後まで (または中断されるまで) 実行します。終端状態のジョブには何もしません。
// RENDERING のジョブは pagesCompleted+1 ページ目から再開します。
func (o *Orchestrator) Run(ctx context.Context, taskID string) error {
	if o.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.JobTimeout)
		defer cancel()
	}

	job, err := o.store.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	if job.IsTerminal() {
		slog.InfoContext(ctx, "Task already finished, skipping", "task_id", taskID, "status", job.Status)
		return nil
	}

	e := &novelExecution{o: o, job: job, startTime: time.Now()}
	return e.run(ctx)
}

// Status はジョブの現在のレコードを返します。副作用はありません。
func (o *Orchestrator) Status(ctx context.Context, taskID string) (*domain.Job, error) {
	return o.store.Get(ctx, taskID)
}

// Novel は完成したジョブのみを返します。未完成の場合は domain.ErrNotFound です。
func (o *Orchestrator) Novel(ctx context.Context, taskID string) (*domain.Job, error) {
	job, err := o.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: task %s is %s", domain.ErrNotFound, taskID, job.Status)
	}
	return job, nil
}

// ListByOwner は所有者のジョブを新しい順に返します。
func (o *Orchestrator) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	return o.store.ListByOwner(ctx, ownerID)
}

// Cancel は中断要求を記録します。ワーカーはステージ間とページ間でこれを確認します。
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	_, err := o.store.Update(ctx, taskID, func(j *domain.Job) error {
		j.CancelRequested = true
		j.StatusMessage = "Cancelling..."
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", taskID, err)
	}
	slog.InfoContext(ctx, "Cancellation requested", "task_id", taskID)
	return nil
}

// ResumeUnfinished は終端に達していないすべてのジョブを再ディスパッチし、件数を返します。
func (o *Orchestrator) ResumeUnfinished(ctx context.Context) (int, error) {
	jobs, err := o.store.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished tasks: %w", err)
	}
	resumed := 0
	for _, job := range jobs {
		if err := o.dispatcher.Dispatch(ctx, job.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to resume task", "task_id", job.ID, "status", job.Status, "error", err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		slog.InfoContext(ctx, "Resumed unfinished tasks", "count", resumed)
	}
	return resumed, nil
}

// Shutdown は新規受付を止め、ディスパッチャーが停止をサポートしていれば実行中のワーカーを待ちます。
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.closing.Store(true)
	if s, ok := o.dispatcher.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return nil
}

// failJob はジョブを FAILED にし、返金ポリシーに従って返金します。すでに終端なら何もしません。
func (o *Orchestrator) failJob(ctx context.Context, taskID string, cause error) {
	message := cause.Error()
	if errors.Is(cause, errCancelled) {
		message = errCancelled.Error()
	}

	var refund bool
	job, err := o.store.Update(ctx, taskID, func(j *domain.Job) error {
		renderStarted := j.Status == domain.StatusRendering
		refund = !j.Refunded && ((!renderStarted && o.opts.RefundOnSetupFailure) || (renderStarted && o.opts.RefundOnRenderFailure))
		j.Status = domain.StatusFailed
		j.Error = &message
		j.StatusMessage = "Something went wrong while making your story."
		if errors.Is(cause, errCancelled) {
			j.StatusMessage = "Cancelled."
		}
		if refund {
			j.Refunded = true
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTerminal) {
			return
		}
		slog.ErrorContext(ctx, "Failed to mark task as failed", "task_id", taskID, "cause", cause, "error", err)
		return
	}

	o.metrics.JobFinished(domain.StatusFailed)
	slog.WarnContext(ctx, "Task failed", "task_id", taskID, "error", message, "refunded", refund)
	if refund {
		o.refund(ctx, job.OwnerID, job.Cost, "task "+taskID+" failed: "+message)
	}
	if notifyErr := o.notifier.NotifyError(ctx, cause, o.notification(job)); notifyErr != nil {
		slog.ErrorContext(ctx, "Error notification failed", "task_id", taskID, "error", notifyErr)
	}
}

func (o *Orchestrator) refund(ctx context.Context, ownerID string, amount int, reason string) {
	if err := o.ledger.Refund(ctx, ownerID, amount, reason); err != nil {
		slog.ErrorContext(ctx, "Refund failed", "owner_id", ownerID, "amount", amount, "error", err)
	}
}

// style は利用者の画風指定と共通の画風指定を結合します。
func (o *Orchestrator) style(requested string) string {
	requested = strings.TrimSpace(requested)
	switch {
	case requested == "":
		return o.opts.StyleSuffix
	case o.opts.StyleSuffix == "":
		return requested
	default:
		return requested + ", " + o.opts.StyleSuffix
	}
}

func (o *Orchestrator) notification(job *domain.Job) domain.NotificationRequest {
	placeholders := 0
	for _, p := range job.Pages {
		if p.Placeholder {
			placeholders++
		}
	}
	category := "graphic-novel"
	if job.Status == domain.StatusFailed {
		category = "error-report"
	}
	return domain.NotificationRequest{
		TaskID:           job.ID,
		OwnerID:          job.OwnerID,
		OutputCategory:   category,
		TargetTitle:      fmt.Sprintf("%s / %d pages", job.Vibe, job.TotalPages),
		PlaceholderPages: placeholders,
	}
}

func (o *Orchestrator) publicURL(taskID string) string {
	if o.opts.ServiceURL == "" {
		return domain.CategoryNotAvailable
	}
	u, err := url.JoinPath(o.opts.ServiceURL, "api", "graphic-novels", taskID)
	if err != nil {
		return domain.CategoryNotAvailable
	}
	return u
}
