package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"graphic-novel-web/internal/domain"

	"google.golang.org/genai"
)

var stringListSchema = &genai.Schema{
	Type:  genai.TypeArray,
	Items: &genai.Schema{Type: genai.TypeString},
}

var panelListSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"panelIndex":       {Type: genai.TypeInteger},
			"dialogue":         {Type: genai.TypeString},
			"sceneDescription": {Type: genai.TypeString},
			"emotion":          {Type: genai.TypeString},
			"bubbleType":       {Type: genai.TypeString, Enum: []string{string(domain.BubbleSpeech), string(domain.BubbleNarration)}},
			"bubblePosition": {Type: genai.TypeString, Enum: []string{
				string(domain.TopLeft), string(domain.TopCenter), string(domain.TopRight),
				string(domain.BottomLeft), string(domain.BottomCenter), string(domain.BottomRight),
			}},
		},
		Required: []string{"dialogue", "sceneDescription"},
	},
}

// GenerateList は JSON の文字列配列を要求し、デコード結果を返します。
func (c *Client) GenerateList(ctx context.Context, system, prompt string) ([]string, error) {
	raw, err := c.generateJSON(ctx, system, prompt, stringListSchema)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gemini: decode string list: %w", err)
	}
	return out, nil
}

// GeneratePanels はコマ台本の JSON 配列を要求し、デコード結果を返します。正規化は呼び出し側の責務です。
func (c *Client) GeneratePanels(ctx context.Context, system, prompt string) ([]domain.Panel, error) {
	raw, err := c.generateJSON(ctx, system, prompt, panelListSchema)
	if err != nil {
		return nil, err
	}
	var out []domain.Panel
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gemini: decode panels: %w", err)
	}
	return out, nil
}

func (c *Client) generateJSON(ctx context.Context, system, prompt string, schema *genai.Schema) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      c.cfg.Temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		SafetySettings:   childSafetySettings(),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.generate(ctx, c.cfg.TextModel, genai.Text(prompt), config)
	if err != nil {
		return nil, err
	}
	text := stripCodeFence(resp.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(text), nil
}
