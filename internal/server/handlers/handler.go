// Package handlers はグラフィックノベル API の HTTP ハンドラーです。
package handlers

import (
	"context"
	"errors"

	"graphic-novel-web/internal/domain"
)

// NovelService はジョブの受付と参照を提供します (pipeline.Orchestrator が実装します)。
type NovelService interface {
	Submit(ctx context.Context, req domain.CreateRequest) (*domain.Job, error)
	Status(ctx context.Context, taskID string) (*domain.Job, error)
	Novel(ctx context.Context, taskID string) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error)
	Cancel(ctx context.Context, taskID string) error
}

// AssetCoach は素材画像の講評を提供します。
type AssetCoach interface {
	Coach(ctx context.Context, req domain.CoachRequest) (*domain.CoachResult, error)
}

// URLResolver は保存済みの画像 URL をブラウザが取得できる URL に変換します。
type URLResolver interface {
	Resolve(ctx context.Context, storedURL string) (string, error)
}

// CreditReader は利用者のクレジット残高を返します。
type CreditReader interface {
	Balance(ctx context.Context, ownerID string) (int, error)
}

type Handler struct {
	service  NovelService
	coach    AssetCoach
	resolver URLResolver
	credits  CreditReader
}

// NewHandler は API ハンドラーを初期化します。
// coach と credits は nil でも構いません (該当する API は 404 を返します)。
func NewHandler(service NovelService, coach AssetCoach, resolver URLResolver, credits CreditReader) (*Handler, error) {
	if service == nil {
		return nil, errors.New("handlers: novel service is required")
	}
	if resolver == nil {
		return nil, errors.New("handlers: url resolver is required")
	}
	return &Handler{
		service:  service,
		coach:    coach,
		resolver: resolver,
		credits:  credits,
	}, nil
}
