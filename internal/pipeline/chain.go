package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrChainExhausted はすべての戦略が失敗したことを示します。
var ErrChainExhausted = errors.New("all strategies failed")

// Strategy は同じ結果型を返す代替手段の 1 つです。
type Strategy[T any] struct {
	Name string
	// Timeout が正の場合、この戦略だけに適用されます。
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// Chain は戦略を順番に試し、最初に成功したものを採用します。
type Chain[T any] struct {
	stage      string
	strategies []Strategy[T]
	metrics    Metrics
}

// NewChain は stage 名付きの Chain を作成します。metrics が nil の場合は記録しません。
func NewChain[T any](stage string, metrics Metrics, strategies ...Strategy[T]) *Chain[T] {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Chain[T]{stage: stage, strategies: strategies, metrics: metrics}
}

// Execute は成功した結果と、その戦略の番号 (1 始まり) を返します。
// 親コンテキストがキャンセルされた場合は残りの戦略を試しません。
func (c *Chain[T]) Execute(ctx context.Context) (T, int, error) {
	var zero T
	var errs []error
	for i, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, 0, err
		}

		result, err := c.run(ctx, s)
		if err == nil {
			attempt := i + 1
			c.metrics.ObserveAttempt(c.stage, attempt, s.Name)
			if attempt > 1 {
				slog.InfoContext(ctx, "Stage recovered by fallback strategy", "stage", c.stage, "strategy", s.Name, "attempt", attempt)
			}
			return result, attempt, nil
		}

		c.metrics.ObserveStrategyError(c.stage, s.Name)
		slog.WarnContext(ctx, "Strategy failed", "stage", c.stage, "strategy", s.Name, "attempt", i+1, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return zero, 0, fmt.Errorf("%s: %w: %w", c.stage, ErrChainExhausted, errors.Join(errs...))
}

func (c *Chain[T]) run(ctx context.Context, s Strategy[T]) (T, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.Run(ctx)
}
