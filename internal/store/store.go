// Package store はジョブレコードとクレジット台帳の永続化を担います。
// ジョブの唯一の正はここに保存されたレコードであり、プロセス内キャッシュは持ちません。
package store

import (
	"context"
	"fmt"
	"time"

	"graphic-novel-web/internal/domain"
)

// TaskStore はジョブレコードのキー単位アトミックな読み書きを提供します。
type TaskStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	// Update は id のレコードをロックした状態で読み込み、fn で変更し、不変条件を検証してから書き戻します。
	Update(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error)
	ListUnfinished(ctx context.Context) ([]*domain.Job, error)
}

// Ledger は利用者ごとのクレジット残高を管理します。
type Ledger interface {
	// Reserve は残高が足りる場合のみ amount を差し引き、差し引き後の残高を返します。
	// 不足時は *domain.CreditError を返します。
	Reserve(ctx context.Context, ownerID string, amount int) (int, error)
	Refund(ctx context.Context, ownerID string, amount int, reason string) error
	Balance(ctx context.Context, ownerID string) (int, error)
}

// Rotator は「直前と同じものを選ばない」ための小さなカーソル (lastIndex) を保持します。
type Rotator interface {
	// NextRotation は key のカーソルを 1 進め、[0, size) の値を返します。
	NextRotation(ctx context.Context, key string, size int) (int, error)
}

// Store はアプリケーションが必要とする永続化機能の集合です。
type Store interface {
	TaskStore
	Ledger
	Rotator
	Close() error
}

// applyUpdate は prev のコピーに fn を適用し、遷移と不変条件を検証した新しいレコードを返します。
func applyUpdate(prev *domain.Job, fn func(*domain.Job) error, now time.Time) (*domain.Job, error) {
	next := prev.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = prev.ID
	next.OwnerID = prev.OwnerID
	next.CreatedAt = prev.CreatedAt
	if err := next.CheckUpdate(prev); err != nil {
		return nil, fmt.Errorf("rejected update for %s: %w", prev.ID, err)
	}
	next.UpdatedAt = now
	return next, nil
}

// prepareCreate は新規レコードの初期値を整えます。
func prepareCreate(job *domain.Job, now time.Time) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	if job.Status != domain.StatusPending {
		return fmt.Errorf("%w: new jobs must be %s", domain.ErrInvalidTransition, domain.StatusPending)
	}
	if err := job.Validate(); err != nil {
		return err
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func rotationNext(last, size int) int {
	if size <= 0 {
		return 0
	}
	if last < 0 {
		return 0
	}
	return (last + 1) % size
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
