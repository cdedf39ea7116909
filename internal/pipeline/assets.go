package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"graphic-novel-web/internal/domain"
)

// AssetStageConfig は素材の保存先の決め方です。
type AssetStageConfig struct {
	Timeout   time.Duration
	// Key はスロット slot の素材の保存キーを決めます。
	Key       func(taskID string, slot int, ext string) string
	Extension func(contentType string) string
}

// AssetStager は data: URI で送られた素材を ArtifactStore に保存し、ジョブレコードには URL だけを残します。
type AssetStager struct {
	fetcher AssetFetcher
	store   ArtifactStore
	cfg     AssetStageConfig
}

// NewAssetStager は AssetStager を作成します。
func NewAssetStager(fetcher AssetFetcher, store ArtifactStore, cfg AssetStageConfig) *AssetStager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Key == nil {
		cfg.Key = func(taskID string, slot int, ext string) string {
			return fmt.Sprintf("%s/assets/slot_%d.%s", taskID, slot, ext)
		}
	}
	if cfg.Extension == nil {
		cfg.Extension = func(string) string { return "png" }
	}
	return &AssetStager{fetcher: fetcher, store: store, cfg: cfg}
}

// Stage は data: の素材を保存して URL に置き換えた一覧を返します。それ以外の参照はそのままです。
func (s *AssetStager) Stage(ctx context.Context, taskID string, assets []domain.Asset) ([]domain.Asset, error) {
	out := append([]domain.Asset(nil), assets...)
	for i, a := range out {
		if !strings.HasPrefix(a.ImageURL, "data:") {
			continue
		}
		data, mime, err := s.fetcher.Fetch(ctx, a.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: asset %d could not be decoded: %v", domain.ErrInvalidInput, a.Slot, err)
		}

		uploadCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		url, err := s.store.Upload(uploadCtx, s.cfg.Key(taskID, a.Slot, s.cfg.Extension(mime)), data, mime)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to store asset %d: %w", a.Slot, err)
		}
		slog.DebugContext(ctx, "Inline asset stored", "task_id", taskID, "slot", a.Slot, "bytes", len(data))
		out[i].ImageURL = url
	}
	return out, nil
}
