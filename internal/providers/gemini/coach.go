package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"graphic-novel-web/internal/domain"

	"google.golang.org/genai"
)

var coachingSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"detected":    {Type: genai.TypeString},
		"suggestions": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"feedback":    {Type: genai.TypeString},
	},
	Required: []string{"detected", "suggestions", "feedback"},
}

// Coach は講評を JSON で要求します。image が空の場合はテキストのみで、それ以外は画像付きで問い合わせます。
func (c *Client) Coach(ctx context.Context, prompt string, image []byte, mimeType string) (*domain.Coaching, error) {
	model := c.cfg.TextModel
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(image) > 0 {
		model = c.cfg.VisionModel
		parts = append(parts, genai.NewPartFromBytes(image, normalizeMIME(mimeType)))
	}

	resp, err := c.generate(ctx, model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, &genai.GenerateContentConfig{
		Temperature:      c.cfg.Temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   coachingSchema,
		SafetySettings:   childSafetySettings(),
	})
	if err != nil {
		return nil, err
	}

	var out domain.Coaching
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text())), &out); err != nil {
		return nil, fmt.Errorf("gemini: decode coaching: %w", err)
	}
	return &out, nil
}
