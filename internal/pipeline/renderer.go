package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"graphic-novel-web/internal/domain"
)

// renderAttemptPlaceholder は代替画像戦略の番号です。
const renderAttemptPlaceholder = 4

// KeyFunc はページ画像の保存キーを決めます。
type KeyFunc func(taskID string, pageNumber int, ext string) string

// RenderConfig は PageRenderer の設定です。
type RenderConfig struct {
	Timeout        time.Duration
	UploadTimeout  time.Duration
	PlaceholderURL string
	Key            KeyFunc
	Extension      func(contentType string) string
}

// PageInput は 1 ページ分のレンダリング入力です。
type PageInput struct {
	TaskID     string
	PageNumber int
	Chapter    string
	Bundle     string
	Style      string
	Layout     domain.Layout
	Panels     []domain.Panel
	Assets     []domain.Asset
}

// PageRenderer は 1 ページを描画し、永続ストレージに保存します。
type PageRenderer struct {
	images  ImageGenerator
	fetcher AssetFetcher
	store   ArtifactStore
	cfg     RenderConfig
	metrics Metrics
}

// NewPageRenderer は PageRenderer を作成します。images が nil の場合は代替画像のみを描画します。
func NewPageRenderer(images ImageGenerator, fetcher AssetFetcher, store ArtifactStore, cfg RenderConfig, metrics Metrics) *PageRenderer {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.Key == nil {
		cfg.Key = func(taskID string, page int, ext string) string {
			return fmt.Sprintf("%s/pages/page_%02d.%s", taskID, page, ext)
		}
	}
	if cfg.Extension == nil {
		cfg.Extension = func(string) string { return "png" }
	}
	return &PageRenderer{images: images, fetcher: fetcher, store: store, cfg: cfg, metrics: metrics}
}

// Render は必ず 1 ページを返します。親コンテキストがキャンセルされた場合のみエラーになります。
func (r *PageRenderer) Render(ctx context.Context, in PageInput) (domain.Page, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRender(time.Since(start)) }()

	img, attempt, err := r.chain(in).Execute(ctx)
	if err != nil {
		return domain.Page{}, err
	}

	imageURL := r.persist(ctx, in, img)
	panels := make([]domain.Panel, len(in.Panels))
	for i, p := range in.Panels {
		p.PanelIndex = i + 1
		panels[i] = p
	}
	return domain.Page{
		PageNumber:    in.PageNumber,
		ImageURL:      imageURL,
		ChapterText:   in.Chapter,
		Panels:        panels,
		RenderAttempt: attempt,
		Placeholder:   attempt == renderAttemptPlaceholder,
	}, nil
}

func (r *PageRenderer) chain(in PageInput) *Chain[*domain.GeneratedImage] {
	strategies := []Strategy[*domain.GeneratedImage]{
		{
			Name:    "reference",
			Timeout: r.cfg.Timeout,
			Run: func(ctx context.Context) (*domain.GeneratedImage, error) {
				if r.images == nil || r.fetcher == nil {
					return nil, errors.New("image provider not configured")
				}
				ref, mime, err := r.firstReference(ctx, in.Assets)
				if err != nil {
					return nil, err
				}
				return checkImage(r.images.GenerateFromReference(ctx, pagePrompt(in), ref, mime))
			},
		},
		{
			Name:    "text",
			Timeout: r.cfg.Timeout,
			Run: func(ctx context.Context) (*domain.GeneratedImage, error) {
				if r.images == nil {
					return nil, errors.New("image provider not configured")
				}
				return checkImage(r.images.Generate(ctx, pagePrompt(in)))
			},
		},
		{
			Name:    "simplified",
			Timeout: r.cfg.Timeout,
			Run: func(ctx context.Context) (*domain.GeneratedImage, error) {
				if r.images == nil {
					return nil, errors.New("image provider not configured")
				}
				return checkImage(r.images.Generate(ctx, simplifiedPrompt(in)))
			},
		},
		{
			Name: "placeholder",
			Run: func(context.Context) (*domain.GeneratedImage, error) {
				return renderPlaceholderPage(fmt.Sprintf("%s:%d", in.TaskID, in.PageNumber), in.Layout)
			},
		},
	}
	return NewChain("render", r.metrics, strategies...)
}

// firstReference はスロット順で最初に取得できた素材を返します。
func (r *PageRenderer) firstReference(ctx context.Context, assets []domain.Asset) ([]byte, string, error) {
	sorted := append([]domain.Asset(nil), assets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })
	for _, a := range sorted {
		if strings.TrimSpace(a.ImageURL) == "" {
			continue
		}
		data, mime, err := r.fetcher.Fetch(ctx, a.ImageURL)
		if err != nil {
			slog.DebugContext(ctx, "Reference asset not usable", "slot", a.Slot, "error", err)
			continue
		}
		return data, mime, nil
	}
	return nil, "", errors.New("no usable reference asset")
}

// persist は生成物を永続ストレージにコピーします。
// 失敗時はプロバイダーの URL、それもなければ設定済みの代替画像 URL を返します。
func (r *PageRenderer) persist(ctx context.Context, in PageInput, img *domain.GeneratedImage) string {
	data, mime := img.Data, img.MIMEType
	if !img.HasData() && img.URL != "" && r.fetcher != nil {
		fetched, fetchedMIME, err := r.fetcher.Fetch(ctx, img.URL)
		if err != nil {
			slog.WarnContext(ctx, "Provider artifact could not be downloaded, keeping provider URL", "task_id", in.TaskID, "page", in.PageNumber, "error", err)
			return img.URL
		}
		data, mime = fetched, fetchedMIME
	}

	if len(data) > 0 && r.store != nil {
		if mime == "" {
			mime = "image/png"
		}
		uploadCtx, cancel := context.WithTimeout(ctx, r.uploadTimeout())
		defer cancel()
		url, err := r.store.Upload(uploadCtx, r.cfg.Key(in.TaskID, in.PageNumber, r.cfg.Extension(mime)), data, mime)
		if err == nil {
			return url
		}
		slog.WarnContext(ctx, "Page upload failed, falling back", "task_id", in.TaskID, "page", in.PageNumber, "error", err)
	}

	if img.URL != "" {
		return img.URL
	}
	return r.cfg.PlaceholderURL
}

func (r *PageRenderer) uploadTimeout() time.Duration {
	if r.cfg.UploadTimeout > 0 {
		return r.cfg.UploadTimeout
	}
	return 30 * time.Second
}

func checkImage(img *domain.GeneratedImage, err error) (*domain.GeneratedImage, error) {
	if err != nil {
		return nil, err
	}
	if img == nil || (!img.HasData() && img.URL == "") {
		return nil, errors.New("provider returned no image")
	}
	return img, nil
}

func pagePrompt(in PageInput) string {
	var b strings.Builder
	b.WriteString(in.Style)
	b.WriteString(".\n\n")
	if in.Bundle != "" {
		b.WriteString("Characters and setting:\n")
		b.WriteString(in.Bundle)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Page %d: %s\n\n", in.PageNumber, in.Chapter)
	fmt.Fprintf(&b, "%d-panel comic page, %s layout:\n", len(in.Panels), in.Layout.GridHint())
	for i, p := range in.Panels {
		fmt.Fprintf(&b, "Panel %d: %s\n", i+1, p.SceneDescription)
	}
	b.WriteString("\nCRITICAL: Use the described characters and setting consistently across all panels. ")
	b.WriteString("Comic book style, vibrant colors, clear panel borders.")
	return b.String()
}

func simplifiedPrompt(in PageInput) string {
	return fmt.Sprintf("%s. Simple storybook illustration: %s. %s Child-friendly art.", in.Style, in.Chapter, in.Bundle)
}
