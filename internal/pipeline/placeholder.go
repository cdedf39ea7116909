package pipeline

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"graphic-novel-web/internal/domain"
)

const (
	placeholderWidth  = 768
	placeholderHeight = 1024
	placeholderGutter = 16
)

// renderPlaceholderPage はプロバイダーを使わずにコマ割りだけの PNG を描画します。
// 同じ seed からは常に同じ画像が得られます。
func renderPlaceholderPage(seed string, layout domain.Layout) (*domain.GeneratedImage, error) {
	cols, rows := 2, layout.PanelsPerPage()/2

	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{R: 250, G: 248, B: 240, A: 255}}, image.Point{}, draw.Src)

	cellW := (placeholderWidth - placeholderGutter*(cols+1)) / cols
	cellH := (placeholderHeight - placeholderGutter*(rows+1)) / rows
	border := color.RGBA{R: 40, G: 40, B: 40, A: 255}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x0 := placeholderGutter + c*(cellW+placeholderGutter)
			y0 := placeholderGutter + r*(cellH+placeholderGutter)
			cell := image.Rect(x0, y0, x0+cellW, y0+cellH)
			draw.Draw(img, cell, &image.Uniform{border}, image.Point{}, draw.Src)
			inner := cell.Inset(4)
			draw.Draw(img, inner, &image.Uniform{seedColor(seed, r*cols+c)}, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("placeholder encode failed: %w", err)
	}
	return &domain.GeneratedImage{Data: buf.Bytes(), MIMEType: "image/png"}, nil
}

// seedColor は seed とコマ番号から淡いパステル色を作ります。
func seedColor(seed string, shift int) color.RGBA {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", seed, shift)
	v := h.Sum32()
	pastel := func(b uint32) uint8 { return uint8(160 + b%96) }
	return color.RGBA{R: pastel(v), G: pastel(v >> 8), B: pastel(v >> 16), A: 255}
}
