package builder

import (
	"context"
	"fmt"
	"log/slog"

	"graphic-novel-web/internal/app"
	"graphic-novel-web/internal/config"
	"graphic-novel-web/internal/pipeline"
	"graphic-novel-web/internal/providers/gemini"
	"graphic-novel-web/internal/safety"
	"graphic-novel-web/internal/storage"
)

// providerSet はパイプラインが使うプロバイダーです。API キーがない場合はすべて nil で、
// 各ステージは決定的な代替戦略だけで動作します。
type providerSet struct {
	text       pipeline.TextGenerator
	vision     pipeline.VisionAnalyzer
	images     pipeline.ImageGenerator
	coacher    pipeline.Coacher
	classifier safety.Classifier
}

// buildPipeline は、ステージとオーケストレーターを組み立ててコンテナに設定します。
func buildPipeline(ctx context.Context, cfg *config.Config, c *app.Container) error {
	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	var gcsReader storage.ObjectReader
	if c.RemoteIO != nil {
		gcsReader = c.RemoteIO.Reader
	}
	sources := []storage.ObjectSource{c.Files}
	if s3, ok := c.Artifacts.(*storage.S3Store); ok {
		sources = append(sources, s3)
	}
	fetcher := storage.NewFetcher(c.HTTPClient, gcsReader, sources...)

	gate := safety.NewGate(cfg.BlockedWords, providers.classifier, fetcher, cfg.SafetyTimeout)

	renderer := pipeline.NewPageRenderer(providers.images, fetcher, c.Artifacts, pipeline.RenderConfig{
		Timeout:        cfg.ImageTimeout,
		UploadTimeout:  cfg.UploadTimeout,
		PlaceholderURL: cfg.PlaceholderURL,
		Key: func(taskID string, pageNumber int, ext string) string {
			return cfg.GetPageObjectPath(taskID, pageNumber, ext)
		},
		Extension: storage.ExtensionFor,
	}, c.Metrics)

	orchestrator, err := pipeline.NewOrchestrator(pipeline.Deps{
		Store:      c.Store,
		Ledger:     c.Store,
		Gate:       gate,
		Dispatcher: c.Dispatcher,
		Notifier:   c.Notifier,
		Metrics:    c.Metrics,
		Analyzer:   pipeline.NewAssetAnalyzer(providers.vision, fetcher, cfg.VisionTimeout, c.Metrics),
		Planner:    pipeline.NewOutlinePlanner(providers.text, cfg.TextTimeout, c.Metrics),
		Writer:     pipeline.NewScriptwriter(providers.text, c.Store, cfg.TextTimeout, c.Metrics),
		Renderer:   renderer,
		Stager: pipeline.NewAssetStager(fetcher, c.Artifacts, pipeline.AssetStageConfig{
			Timeout:   cfg.UploadTimeout,
			Key:       cfg.GetAssetObjectPath,
			Extension: storage.ExtensionFor,
		}),
	}, pipeline.Options{
		ServiceURL:            cfg.ServiceURL,
		StyleSuffix:           cfg.StyleSuffix,
		RefundOnSetupFailure:  cfg.RefundOnSetupErr,
		RefundOnRenderFailure: cfg.RefundOnRenderErr,
		JobTimeout:            cfg.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	c.Orchestrator = orchestrator
	c.Coach = pipeline.NewAssetCoach(providers.vision, providers.coacher, fetcher, gate, c.Store, cfg.VisionTimeout, c.Metrics)
	return nil
}

// buildProviders は Gemini クライアントを初期化します。
// インターフェースに nil ポインタを入れないよう、キーがない場合は空の providerSet を返します。
func buildProviders(ctx context.Context, cfg *config.Config) (providerSet, error) {
	if cfg.GeminiAPIKey == "" {
		slog.WarnContext(ctx, "GEMINI_API_KEY is not set, running with deterministic fallbacks only")
		return providerSet{}, nil
	}

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		TextModel:   cfg.TextModel,
		VisionModel: cfg.VisionModel,
		ImageModel:  cfg.ImageModel,
		SafetyModel: cfg.SafetyModel,
	})
	if err != nil {
		return providerSet{}, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	return providerSet{
		text:       client,
		vision:     client,
		images:     client,
		coacher:    client,
		classifier: client,
	}, nil
}
