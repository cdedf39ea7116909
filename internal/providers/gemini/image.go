package gemini

import (
	"context"
	"fmt"

	"graphic-novel-web/internal/domain"

	"google.golang.org/genai"
)

// Generate はテキストプロンプトのみから画像を生成します。
func (c *Client) Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	return c.generateImage(ctx, []*genai.Part{genai.NewPartFromText(prompt)})
}

// GenerateFromReference は参照画像を添えて画像を生成します。キャラクターの見た目を揃えるために使います。
func (c *Client) GenerateFromReference(ctx context.Context, prompt string, reference []byte, referenceMIME string) (*domain.GeneratedImage, error) {
	return c.generateImage(ctx, []*genai.Part{
		genai.NewPartFromBytes(reference, normalizeMIME(referenceMIME)),
		genai.NewPartFromText(prompt),
	})
}

func (c *Client) generateImage(ctx context.Context, parts []*genai.Part) (*domain.GeneratedImage, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.generate(ctx, c.cfg.ImageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		SafetySettings:     childSafetySettings(),
	})
	if err != nil {
		return nil, err
	}
	return extractImage(resp)
}

// extractImage は最初の候補から画像パートを探します。
func extractImage(resp *genai.GenerateContentResponse) (*domain.GeneratedImage, error) {
	if err := checkBlocked(resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &domain.GeneratedImage{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
			if part.FileData != nil && part.FileData.FileURI != "" {
				return &domain.GeneratedImage{URL: part.FileData.FileURI, MIMEType: part.FileData.MIMEType}, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no image part", ErrEmptyResponse)
}
