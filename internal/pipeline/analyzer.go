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

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenericElement は説明が得られなかったスロットの既定文です。
const GenericElement = "a creative children's story element"

// AssetAnalyzer は各スロットの素材をキャラクター/設定の説明文にまとめます。
type AssetAnalyzer struct {
	vision  VisionAnalyzer
	fetcher AssetFetcher
	timeout time.Duration
	metrics Metrics
}

// NewAssetAnalyzer は AssetAnalyzer を作成します。vision が nil の場合は説明文のみを使います。
func NewAssetAnalyzer(vision VisionAnalyzer, fetcher AssetFetcher, timeout time.Duration, metrics Metrics) *AssetAnalyzer {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AssetAnalyzer{vision: vision, fetcher: fetcher, timeout: timeout, metrics: metrics}
}

// Analyze はスロット順に "<Role>: <text>" の行を連結したバンドルを返します。失敗しません。
func (a *AssetAnalyzer) Analyze(ctx context.Context, vibe domain.Vibe, assets []domain.Asset) string {
	sorted := append([]domain.Asset(nil), assets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Slot < sorted[j].Slot })

	title := cases.Title(language.English)
	lines := make([]string, 0, len(sorted))
	for _, asset := range sorted {
		role := vibe.Role(asset.Slot)
		text, _, err := a.slotChain(vibe, role, asset).Execute(ctx)
		if err != nil {
			// 親コンテキストのキャンセル時のみ到達します。
			text = GenericElement
		}
		lines = append(lines, fmt.Sprintf("%s: %s", title.String(role), text))
	}
	return strings.Join(lines, "\n")
}

func (a *AssetAnalyzer) slotChain(vibe domain.Vibe, role string, asset domain.Asset) *Chain[string] {
	var strategies []Strategy[string]
	if a.vision != nil && a.fetcher != nil && strings.TrimSpace(asset.ImageURL) != "" {
		strategies = append(strategies, Strategy[string]{
			Name:    "vision",
			Timeout: a.timeout,
			Run: func(ctx context.Context) (string, error) {
				return a.describe(ctx, vibe, role, asset)
			},
		})
	}
	strategies = append(strategies,
		Strategy[string]{
			Name: "description",
			Run: func(context.Context) (string, error) {
				if d := strings.TrimSpace(asset.Description); d != "" {
					return d, nil
				}
				return "", errors.New("no description supplied")
			},
		},
		Strategy[string]{
			Name: "generic",
			Run: func(context.Context) (string, error) {
				return GenericElement, nil
			},
		},
	)
	return NewChain("analyze", a.metrics, strategies...)
}

func (a *AssetAnalyzer) describe(ctx context.Context, vibe domain.Vibe, role string, asset domain.Asset) (string, error) {
	data, mime, err := a.fetcher.Fetch(ctx, asset.ImageURL)
	if err != nil {
		return "", fmt.Errorf("アセットの取得に失敗しました: %w", err)
	}

	instruction := fmt.Sprintf(
		"Describe this drawing as the %s of a children's %s story in 2-3 sentences. "+
			"Mention colors, shapes and distinctive features so an illustrator can draw it the same way on every page.",
		role, vibe)
	if d := strings.TrimSpace(asset.Description); d != "" {
		instruction += " The artist says: " + d
	}

	text, err := a.vision.Describe(ctx, data, mime, instruction)
	if err != nil {
		return "", err
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", errors.New("empty description")
	}
	slog.DebugContext(ctx, "Asset described", "slot", asset.Slot, "role", role)
	return text, nil
}
