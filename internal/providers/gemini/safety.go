package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	textSafetyPrompt  = "Check if this text is safe for a children's book app. If it contains violence, hate speech, or adult content, reply 'UNSAFE'. Otherwise reply 'SAFE'. Text: \"%s\""
	imageSafetyPrompt = "Check if this image is safe for a children's app. Reply only SAFE or UNSAFE."
)

// IsSafeText は分類モデルにテキストの安全性を問い合わせます。
// ブロックされた応答は安全でないと判定し、それ以外のエラーは呼び出し側に返します。
func (c *Client) IsSafeText(ctx context.Context, text string) (bool, error) {
	prompt := fmt.Sprintf(textSafetyPrompt, strings.ReplaceAll(text, `"`, `'`))
	return c.classify(ctx, []*genai.Part{genai.NewPartFromText(prompt)})
}

// IsSafeImage は分類モデルに画像の安全性を問い合わせます。
func (c *Client) IsSafeImage(ctx context.Context, image []byte, mimeType string) (bool, error) {
	return c.classify(ctx, []*genai.Part{
		genai.NewPartFromText(imageSafetyPrompt),
		genai.NewPartFromBytes(image, normalizeMIME(mimeType)),
	})
}

func (c *Client) classify(ctx context.Context, parts []*genai.Part) (bool, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.generate(ctx, c.cfg.SafetyModel, contents, &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(float32(0)),
		SafetySettings: childSafetySettings(),
	})
	if err != nil {
		if errors.Is(err, ErrBlocked) {
			return false, nil
		}
		return false, err
	}
	return parseVerdict(resp.Text()), nil
}

// parseVerdict は "SAFE" を含み "UNSAFE" を含まない応答のみを安全とみなします。
func parseVerdict(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	return strings.Contains(upper, "SAFE") && !strings.Contains(upper, "UNSAFE")
}
