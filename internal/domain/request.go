package domain

import "strings"

// CreateRequest はジョブ作成 API の入力です。
type CreateRequest struct {
	OwnerID    string       `json:"ownerId" validate:"required,max=128"`
	Vibe       string       `json:"vibe" validate:"omitempty,oneof=adventure funny fairytale school"`
	Assets     []AssetInput `json:"assets" validate:"required,min=1,max=4,unique=Slot,dive"`
	TotalPages int          `json:"totalPages" validate:"required,oneof=4 8 12"`
	Layout     string       `json:"layout" validate:"omitempty,oneof=standard dynamic"`
	PlotHint   string       `json:"plotHint" validate:"max=1000"`
	Style      string       `json:"style" validate:"max=500"`
}

// AssetInput はスロット 1 つ分の入力です。
type AssetInput struct {
	Slot        int    `json:"slot" validate:"required,min=1,max=4"`
	ImageURL    string `json:"imageUrl" validate:"required,max=16777216"`
	Description string `json:"description" validate:"max=500"`
}

// FreeTexts は安全性チェックにかける自由入力テキストを返します。
func (r CreateRequest) FreeTexts() []string {
	texts := []string{r.PlotHint, r.Style}
	for _, a := range r.Assets {
		texts = append(texts, a.Description)
	}
	out := texts[:0]
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// ImageRefs はすべての素材画像の参照を返します。
func (r CreateRequest) ImageRefs() []string {
	refs := make([]string, 0, len(r.Assets))
	for _, a := range r.Assets {
		refs = append(refs, a.ImageURL)
	}
	return refs
}

// StoryRequest は保存用の StoryRequest に変換します。
func (r CreateRequest) StoryRequest() StoryRequest {
	assets := make([]Asset, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, Asset{
			Slot:        a.Slot,
			ImageURL:    strings.TrimSpace(a.ImageURL),
			Description: strings.TrimSpace(a.Description),
		})
	}
	return StoryRequest{
		Assets:   assets,
		PlotHint: strings.TrimSpace(r.PlotHint),
		Style:    strings.TrimSpace(r.Style),
	}
}
