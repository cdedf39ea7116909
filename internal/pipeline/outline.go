package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"graphic-novel-web/internal/domain"
)

// OutlinePlanner は章ごとの要約を totalPages 件ちょうど生成します。
type OutlinePlanner struct {
	text    TextGenerator
	timeout time.Duration
	metrics Metrics
}

// NewOutlinePlanner は OutlinePlanner を作成します。text が nil の場合は常に固定テンプレートを使います。
func NewOutlinePlanner(text TextGenerator, timeout time.Duration, metrics Metrics) *OutlinePlanner {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &OutlinePlanner{text: text, timeout: timeout, metrics: metrics}
}

// Plan はアウトラインと、採用した戦略の番号を返します。結果の長さは常に totalPages です。
func (p *OutlinePlanner) Plan(ctx context.Context, bundle string, vibe domain.Vibe, totalPages int, plotHint string) ([]string, int, error) {
	var strategies []Strategy[[]string]
	if p.text != nil {
		strategies = append(strategies, Strategy[[]string]{
			Name:    "provider",
			Timeout: p.timeout,
			Run: func(ctx context.Context) ([]string, error) {
				return p.generate(ctx, bundle, vibe, totalPages, plotHint)
			},
		})
	}
	strategies = append(strategies, Strategy[[]string]{
		Name: "template",
		Run: func(context.Context) ([]string, error) {
			return FallbackOutline(vibe, totalPages), nil
		},
	})
	return NewChain("outline", p.metrics, strategies...).Execute(ctx)
}

func (p *OutlinePlanner) generate(ctx context.Context, bundle string, vibe domain.Vibe, totalPages int, plotHint string) ([]string, error) {
	chapters, err := p.text.GenerateList(ctx, outlineSystemPrompt(bundle, vibe, totalPages, plotHint), outlineUserPrompt(totalPages, plotHint))
	if err != nil {
		return nil, err
	}
	if len(chapters) != totalPages {
		return nil, fmt.Errorf("outline arity mismatch: got %d chapters, want %d", len(chapters), totalPages)
	}
	out := make([]string, len(chapters))
	for i, c := range chapters {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("outline chapter %d is empty", i+1)
		}
		out[i] = c
	}
	return out, nil
}

func outlineSystemPrompt(bundle string, vibe domain.Vibe, totalPages int, plotHint string) string {
	var b strings.Builder
	b.WriteString("You are a children's storytelling expert. ")
	b.WriteString(vibeTone(vibe, totalPages))
	b.WriteString("\n\n")
	if hint, ok := structureHints[totalPages]; ok {
		b.WriteString(hint)
		b.WriteString("\n\n")
	}
	if bundle != "" {
		b.WriteString("Characters and setting:\n")
		b.WriteString(bundle)
		b.WriteString("\n\n")
	}
	if h := strings.TrimSpace(plotHint); h != "" {
		fmt.Fprintf(&b, "MANDATORY story direction (do not ignore): %s\n\n", h)
	}
	fmt.Fprintf(&b, `Requirements:
- Chapter 1 must establish who the characters are and where the story takes place before any action.
- Each chapter is 1-2 sentences.
- The chapters follow a logical progression.
- Suitable for ages 5-10.
- Return EXACTLY %d chapters as a JSON array of strings.`, totalPages)
	return b.String()
}

func outlineUserPrompt(totalPages int, plotHint string) string {
	if h := strings.TrimSpace(plotHint); h != "" {
		return fmt.Sprintf("Story direction: %s\n\nGenerate the %d-chapter outline.", h, totalPages)
	}
	return fmt.Sprintf("Generate the %d-chapter outline.", totalPages)
}
