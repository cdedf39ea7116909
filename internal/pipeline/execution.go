package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"graphic-novel-web/internal/domain"
)

const (
	progressAnalyzed = 10
	progressScripted = 25
)

// novelExecution は 1 ジョブの 1 回の実行に関する状態を保持します。
type novelExecution struct {
	o         *Orchestrator
	job       *domain.Job
	startTime time.Time
	pages     []domain.Page
}

// run はレコードの状態から再開しつつ、残りのステージを順に実行します。
func (e *novelExecution) run(ctx context.Context) (err error) {
	// 失敗時の終端処理を defer 文で一括管理します。
	defer func() {
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			slog.WarnContext(ctx, "Execution interrupted, task left for resumption", "task_id", e.job.ID, "status", e.job.Status, "pages_completed", e.job.PagesCompleted)
			return
		}
		e.o.failJob(context.WithoutCancel(ctx), e.job.ID, err)
	}()

	slog.InfoContext(ctx, "Pipeline execution started", "task_id", e.job.ID, "status", e.job.Status, "pages_completed", e.job.PagesCompleted)

	if e.job.Status == domain.StatusPending || e.job.Status == domain.StatusAnalyzing {
		if err = e.analyze(ctx); err != nil {
			return fmt.Errorf("analysis step failed: %w", err)
		}
	}
	if e.job.Status == domain.StatusScripting {
		if err = e.script(ctx); err != nil {
			return fmt.Errorf("script step failed: %w", err)
		}
	}
	if e.job.Status == domain.StatusRendering {
		if err = e.render(ctx); err != nil {
			return fmt.Errorf("render step failed: %w", err)
		}
	}

	if e.job.Status != domain.StatusCompleted {
		return fmt.Errorf("%w: execution ended in %s", domain.ErrInvariant, e.job.Status)
	}
	e.finish(ctx)
	return nil
}

func (e *novelExecution) analyze(ctx context.Context) error {
	if e.job.Status == domain.StatusPending {
		if err := e.save(ctx, true, func(j *domain.Job) error {
			j.Status = domain.StatusAnalyzing
			j.StatusMessage = "Looking at your drawings..."
			return nil
		}); err != nil {
			return err
		}
	}

	bundle := e.o.analyzer.Analyze(ctx, e.job.Vibe, e.job.Request.Assets)
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.save(ctx, true, func(j *domain.Job) error {
		j.Status = domain.StatusScripting
		j.Bundle = bundle
		j.Progress = progressAnalyzed
		j.StatusMessage = "Writing the story..."
		return nil
	})
}

func (e *novelExecution) script(ctx context.Context) error {
	outline := e.job.PlotOutline
	if len(outline) != e.job.TotalPages {
		planned, attempt, err := e.o.planner.Plan(ctx, e.job.Bundle, e.job.Vibe, e.job.TotalPages, e.job.Request.PlotHint)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "Outline planned", "task_id", e.job.ID, "attempt", attempt, "chapters", len(planned))
		if err := e.save(ctx, true, func(j *domain.Job) error {
			j.PlotOutline = planned
			j.StatusMessage = "Planning every panel..."
			return nil
		}); err != nil {
			return err
		}
		outline = planned
	}

	panels, attempt, err := e.o.writer.Write(ctx, e.job.OwnerID, e.job.Bundle, outline, e.job.PanelsPerPage)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Script written", "task_id", e.job.ID, "attempt", attempt, "panels", len(panels))

	return e.save(ctx, true, func(j *domain.Job) error {
		j.Status = domain.StatusRendering
		j.Script = panels
		j.Progress = progressScripted
		j.CurrentPage = 1
		j.StatusMessage = fmt.Sprintf("Drawing page 1 of %d...", j.TotalPages)
		return nil
	})
}

func (e *novelExecution) render(ctx context.Context) error {
	total, perPage := e.job.TotalPages, e.job.PanelsPerPage
	if len(e.job.Script) != total*perPage || len(e.job.PlotOutline) != total {
		return fmt.Errorf("%w: script or outline missing for rendering", domain.ErrInvariant)
	}

	e.pages = append([]domain.Page(nil), e.job.Pages...)
	style := e.o.style(e.job.Request.Style)

	for k := len(e.pages) + 1; k <= total; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if k > 1 {
			err := e.save(ctx, true, func(j *domain.Job) error {
				j.CurrentPage = k
				j.StatusMessage = fmt.Sprintf("Drawing page %d of %d...", k, total)
				return nil
			})
			if errors.Is(err, errCancelled) || ctx.Err() != nil {
				return err
			}
			if err != nil {
				slog.WarnContext(ctx, "Progress update failed, continuing", "task_id", e.job.ID, "page", k, "error", err)
			}
		}

		page, err := e.o.renderer.Render(ctx, PageInput{
			TaskID:     e.job.ID,
			PageNumber: k,
			Chapter:    e.job.PlotOutline[k-1],
			Bundle:     e.job.Bundle,
			Style:      style,
			Layout:     e.job.Layout,
			Panels:     e.job.Script[(k-1)*perPage : k*perPage],
			Assets:     e.job.Request.Assets,
		})
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Page rendered", "task_id", e.job.ID, "page", k, "attempt", page.RenderAttempt)

		e.pages = append(e.pages, page)
		if err := e.checkpoint(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint はページ k までを保存します。最後のページでは COMPLETED への遷移も同じ書き込みで行います。
// 途中ページの保存失敗は記録だけして続行します。
func (e *novelExecution) checkpoint(ctx context.Context, k int) error {
	total := e.job.TotalPages
	final := k == total
	pages := append([]domain.Page(nil), e.pages...)

	err := e.save(ctx, false, func(j *domain.Job) error {
		j.Pages = pages
		j.PagesCompleted = k
		j.CurrentPage = k
		if final {
			now := time.Now().UTC()
			j.Status = domain.StatusCompleted
			j.Progress = 100
			j.CompletedAt = &now
			j.StatusMessage = "Your graphic novel is ready!"
			return nil
		}
		j.Progress = progressScripted + (100-progressScripted)*k/total
		j.StatusMessage = fmt.Sprintf("Finished page %d of %d", k, total)
		return nil
	})
	if err != nil {
		e.o.metrics.CheckpointFailed()
		if final || ctx.Err() != nil {
			return fmt.Errorf("checkpoint for page %d failed: %w", k, err)
		}
		slog.ErrorContext(ctx, "Checkpoint failed, continuing", "task_id", e.job.ID, "page", k, "error", err)
		return nil
	}

	if !final && e.job.CancelRequested {
		return errCancelled
	}
	return nil
}

// save はレコードを更新し、失敗した場合は 1 回だけ再試行します。
// checkCancel が true の場合、中断要求があれば書き込まずに errCancelled を返します。
func (e *novelExecution) save(ctx context.Context, checkCancel bool, fn func(*domain.Job) error) error {
	apply := func(j *domain.Job) error {
		if checkCancel && j.CancelRequested {
			return errCancelled
		}
		return fn(j)
	}

	updated, err := e.o.store.Update(ctx, e.job.ID, apply)
	if err != nil && retryable(ctx, err) {
		slog.WarnContext(ctx, "Task update failed, retrying once", "task_id", e.job.ID, "error", err)
		updated, err = e.o.store.Update(ctx, e.job.ID, apply)
	}
	if err != nil {
		return err
	}
	e.job = updated
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	for _, permanent := range []error{errCancelled, domain.ErrTerminal, domain.ErrInvalidTransition, domain.ErrInvariant, domain.ErrNotFound} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

// finish は完了通知とメトリクスを記録します。
func (e *novelExecution) finish(ctx context.Context) {
	e.o.metrics.JobFinished(domain.StatusCompleted)
	req := e.o.notification(e.job)
	slog.InfoContext(ctx, "Pipeline execution completed",
		"task_id", e.job.ID,
		"pages", len(e.job.Pages),
		"placeholder_pages", req.PlaceholderPages,
		"duration", time.Since(e.startTime).String(),
	)

	storageURI := domain.CategoryNotAvailable
	if len(e.job.Pages) > 0 && e.job.Pages[0].ImageURL != "" {
		storageURI = e.job.Pages[0].ImageURL
	}
	if err := e.o.notifier.Notify(ctx, e.o.publicURL(e.job.ID), storageURI, req); err != nil {
		// 通知処理自体の失敗は、パイプライン全体の成否には影響させません。
		slog.ErrorContext(ctx, "Notification failed", "task_id", e.job.ID, "error", err)
	}
}
