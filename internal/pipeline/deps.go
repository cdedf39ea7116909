package pipeline

import (
	"context"
	"time"

	"graphic-novel-web/internal/domain"
)

// TextGenerator は構造化テキスト生成プロバイダーです。件数の保証は呼び出し側が行います。
type TextGenerator interface {
	GenerateList(ctx context.Context, system, prompt string) ([]string, error)
	GeneratePanels(ctx context.Context, system, prompt string) ([]domain.Panel, error)
}

// VisionAnalyzer は画像を説明文に変換するプロバイダーです。
type VisionAnalyzer interface {
	Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}

// ImageGenerator は画像生成プロバイダーです。
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error)
	GenerateFromReference(ctx context.Context, prompt string, reference []byte, referenceMIME string) (*domain.GeneratedImage, error)
}

// ArtifactStore は生成物を永続ストレージにコピーし、恒久 URL を返します。
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AssetFetcher は画像参照からバイト列を取得します。
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// SafetyGate は有料処理前の安全性チェックです。
type SafetyGate interface {
	Check(ctx context.Context, texts []string, imageRefs []string) error
}

// TaskStore はジョブレコードの永続化層です。
type TaskStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, id string, fn func(*domain.Job) error) (*domain.Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error)
	ListUnfinished(ctx context.Context) ([]*domain.Job, error)
}

// Ledger はクレジットの予約と返金を行います。
type Ledger interface {
	Reserve(ctx context.Context, ownerID string, amount int) (int, error)
	Refund(ctx context.Context, ownerID string, amount int, reason string) error
}

// Rotator は直前と同じ選択を避けるための永続カーソルです。
type Rotator interface {
	NextRotation(ctx context.Context, key string, size int) (int, error)
}

// Dispatcher はジョブ 1 件につき 1 つのワーカー実行を起動します。呼び出し元は完了を待ちません。
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string) error
}

// Notifier は完了・失敗を外部 (Slack 等) に知らせます。
type Notifier interface {
	Notify(ctx context.Context, publicURL, storageURI string, req domain.NotificationRequest) error
	NotifyError(ctx context.Context, errDetail error, req domain.NotificationRequest) error
}

// Metrics はパイプラインの観測点です。
type Metrics interface {
	ObserveAttempt(stage string, attempt int, strategy string)
	ObserveStrategyError(stage, strategy string)
	CheckpointFailed()
	JobFinished(status domain.Status)
	ObserveRender(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAttempt(string, int, string) {}
func (noopMetrics) ObserveStrategyError(string, string) {}
func (noopMetrics) CheckpointFailed() {}
func (noopMetrics) JobFinished(domain.Status) {}
func (noopMetrics) ObserveRender(time.Duration) {}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string, domain.NotificationRequest) error {
	return nil
}

func (noopNotifier) NotifyError(context.Context, error, domain.NotificationRequest) error {
	return nil
}
