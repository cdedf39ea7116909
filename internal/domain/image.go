package domain

// GeneratedImage は画像生成プロバイダーが返した 1 枚分の結果です。
// プロバイダーによってはバイト列ではなくホスト済み URL のみを返します。
type GeneratedImage struct {
	Data     []byte
	MIMEType string
	URL      string
}

// HasData はアップロード可能なバイト列を持つかどうかを返します。
func (g *GeneratedImage) HasData() bool {
	return g != nil && len(g.Data) > 0
}
