// Package gemini は google.golang.org/genai を使ったテキスト生成・画像解析・画像生成・安全性判定の実装です。
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultTemperature = float32(0.7)

// ErrBlocked はプロバイダー側の安全フィルターで応答がブロックされたことを示します。
var ErrBlocked = errors.New("gemini: response blocked")

// ErrEmptyResponse は候補が空だったことを示します。
var ErrEmptyResponse = errors.New("gemini: empty response")

// Config はクライアントが使うモデル名などの設定です。
type Config struct {
	APIKey      string
	TextModel   string
	VisionModel string
	ImageModel  string
	SafetyModel string
	Temperature *float32
}

// Client は genai.Client をラップし、パイプラインが必要とする呼び出しを提供します。
type Client struct {
	genai *genai.Client
	cfg   Config
}

// NewClient は Gemini API バックエンドの genai クライアントを初期化します。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Temperature == nil {
		cfg.Temperature = genai.Ptr(defaultTemperature)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return &Client{genai: gc, cfg: cfg}, nil
}

// childSafetySettings は子ども向けコンテンツとして最も厳しいしきい値です。
func childSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockLowAndAbove,
		})
	}
	return settings
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", model, err)
	}
	if err := checkBlocked(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func checkBlocked(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return ErrEmptyResponse
	}
	return nil
}

// stripCodeFence はモデルが JSON を ```json ... ``` で囲んで返した場合に中身だけを取り出します。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
