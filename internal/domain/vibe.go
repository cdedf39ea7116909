package domain

import "strings"

// Vibe はアウトラインとプロンプトの雰囲気を決めるテンプレート名です。
type Vibe string

const (
	VibeAdventure Vibe = "adventure"
	VibeFunny     Vibe = "funny"
	VibeFairytale Vibe = "fairytale"
	VibeSchool    Vibe = "school"
)

// Vibes は受け付けるすべての Vibe です。
var Vibes = []Vibe{VibeAdventure, VibeFunny, VibeFairytale, VibeSchool}

// slotRoles は Vibe ごとのスロット 1〜4 の役割です。
var slotRoles = map[Vibe][4]string{
	VibeAdventure: {"hero", "villain", "setting", "extra element"},
	VibeFunny:     {"trickster", "victim", "setting", "extra element"},
	VibeFairytale: {"protagonist", "magical friend", "setting", "extra element"},
	VibeSchool:    {"student", "friend", "setting", "extra element"},
}

// ParseVibe は自由入力を正規化します。未知の値は adventure として扱います。
func ParseVibe(s string) Vibe {
	v := Vibe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := slotRoles[v]; ok {
		return v
	}
	return VibeAdventure
}

// Role はスロット番号 (1〜4) に対応する役割名を返します。
func (v Vibe) Role(slot int) string {
	roles, ok := slotRoles[v]
	if !ok {
		roles = slotRoles[VibeAdventure]
	}
	if slot < 1 || slot > len(roles) {
		return "story element"
	}
	return roles[slot-1]
}

// Layout はページあたりのコマ数を決めます。
type Layout string

const (
	Standard Layout = "standard"
	Dynamic  Layout = "dynamic"
)

// ParseLayout は自由入力を正規化します。未知の値は standard です。
func ParseLayout(s string) Layout {
	if Layout(strings.ToLower(strings.TrimSpace(s))) == Dynamic {
		return Dynamic
	}
	return Standard
}

// PanelsPerPage は standard なら 4、dynamic なら 6 です。
func (l Layout) PanelsPerPage() int {
	if l == Dynamic {
		return 6
	}
	return 4
}

// GridHint は画像生成プロンプトに埋め込むグリッド指定です。
func (l Layout) GridHint() string {
	if l == Dynamic {
		return "2x3 grid (2 columns, 3 rows)"
	}
	return "2x2 grid"
}

// BubbleType は吹き出しの種類です。
type BubbleType string

const (
	BubbleSpeech    BubbleType = "speech"
	BubbleNarration BubbleType = "narration"
)

// BubblePosition は吹き出しの配置アンカーです。
type BubblePosition string

const (
	TopLeft      BubblePosition = "top-left"
	TopCenter    BubblePosition = "top-center"
	TopRight     BubblePosition = "top-right"
	BottomLeft   BubblePosition = "bottom-left"
	BottomCenter BubblePosition = "bottom-center"
	BottomRight  BubblePosition = "bottom-right"
)

// BubblePositions は 6 つのアンカーを既定の巡回順で並べたものです。
var BubblePositions = []BubblePosition{TopLeft, TopRight, BottomLeft, BottomRight, TopCenter, BottomCenter}

// IsValid は既知のアンカーかどうかを返します。
func (p BubblePosition) IsValid() bool {
	for _, v := range BubblePositions {
		if v == p {
			return true
		}
	}
	return false
}

// pageCosts はページ数ごとのクレジット消費量です。
var pageCosts = map[int]int{
	4:  100,
	8:  180,
	12: 250,
}

// ValidPageCount は 4 / 8 / 12 のいずれかかを返します。
func ValidPageCount(n int) bool {
	_, ok := pageCosts[n]
	return ok
}

// CostFor はページ数に応じたクレジット消費量を返します。
func CostFor(totalPages int) int {
	return pageCosts[totalPages]
}
