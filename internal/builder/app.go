package builder

import (
	"context"
	"fmt"
	"log/slog"

	"graphic-novel-web/internal/adapters"
	"graphic-novel-web/internal/app"
	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/metrics"

	"github.com/shouni/go-http-kit/httpkit"
)

// BuildContainer は外部サービスとの接続を確立し、依存関係を組み立てます。
// 途中で失敗した場合は、それまでに確保したリソースを解放してからエラーを返します。
func BuildContainer(ctx context.Context, cfg *config.Config) (_ *app.Container, err error) {
	c := &app.Container{
		Config:     cfg,
		HTTPClient: httpkit.New(config.DefaultHTTPTimeout),
		Metrics:    metrics.NewRecorder(),
	}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. タスクレコードストアとクレジット台帳
	if c.Store, err = buildStore(ctx, cfg); err != nil {
		return nil, err
	}

	// 2. I/O インフラ (GCS / S3 / ローカル) の初期化
	if err = buildStorage(ctx, cfg, c); err != nil {
		return nil, err
	}

	// 3. アダプターの初期化
	slack, err := adapters.NewSlackAdapter(c.HTTPClient, cfg.SlackWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Slack adapter: %w", err)
	}
	c.Notifier = slack

	if c.Dispatcher, err = buildDispatcher(ctx, cfg); err != nil {
		return nil, err
	}

	// 4. パイプラインの構築
	if err = buildPipeline(ctx, cfg, c); err != nil {
		return nil, err
	}

	// ローカル実行ではオーケストレーター構築後にワーカーを結び付けます
	if local, ok := c.Dispatcher.(*adapters.LocalDispatcher); ok {
		local.Attach(c.Orchestrator)
	}

	slog.InfoContext(ctx, "Application container built",
		"store", cfg.StoreDriver,
		"storage", cfg.StorageDriver,
		"dispatch", cfg.DispatchMode,
		"providers", cfg.GeminiAPIKey != "",
	)
	return c, nil
}
