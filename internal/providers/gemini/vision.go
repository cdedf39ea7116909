package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// Describe は画像とインストラクションを送り、短い説明文を返します。
func (c *Client) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(image, normalizeMIME(mimeType)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.generate(ctx, c.cfg.VisionModel, contents, &genai.GenerateContentConfig{
		Temperature:    c.cfg.Temperature,
		SafetySettings: childSafetySettings(),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "image/jpeg"
	}
	return mimeType
}
