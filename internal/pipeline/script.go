package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"graphic-novel-web/internal/domain"
)

// bridgingPhrases は文が足りないコマに入れるつなぎの台詞です。
var bridgingPhrases = []string{
	"What happens next?",
	"Look over there!",
	"Let's keep going!",
	"I have an idea!",
	"Wow, did you see that?",
	"We can do this together.",
	"Hmm, that's strange...",
	"Meanwhile...",
	"Hold on tight!",
	"Just a little further!",
	"Everyone, get ready!",
	"This is amazing!",
}

var fallbackEmotions = []string{"happy", "curious", "surprised", "determined", "excited", "calm"}

const defaultEmotion = "calm"

// Scriptwriter は物語全体のコマを 1 回の生成で作ります。
type Scriptwriter struct {
	text    TextGenerator
	rotator Rotator
	timeout time.Duration
	metrics Metrics
}

// NewScriptwriter は Scriptwriter を作成します。
func NewScriptwriter(text TextGenerator, rotator Rotator, timeout time.Duration, metrics Metrics) *Scriptwriter {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scriptwriter{text: text, rotator: rotator, timeout: timeout, metrics: metrics}
}

// Write は len(outline)*panelsPerPage 件ちょうどのコマと採用した戦略の番号を返します。
// コマ番号はページ内で 1 から振られます。
func (s *Scriptwriter) Write(ctx context.Context, ownerID, bundle string, outline []string, panelsPerPage int) ([]domain.Panel, int, error) {
	total := len(outline) * panelsPerPage
	var strategies []Strategy[[]domain.Panel]
	if s.text != nil {
		strategies = append(strategies, Strategy[[]domain.Panel]{
			Name:    "provider",
			Timeout: s.timeout,
			Run: func(ctx context.Context) ([]domain.Panel, error) {
				panels, err := s.text.GeneratePanels(ctx, scriptSystemPrompt(bundle, panelsPerPage), scriptUserPrompt(outline, panelsPerPage))
				if err != nil {
					return nil, err
				}
				if len(panels) == 0 {
					return nil, errors.New("provider returned no panels")
				}
				if len(panels) != total {
					slog.WarnContext(ctx, "Script arity mismatch, normalizing", "got", len(panels), "want", total)
				}
				return normalizePanels(panels, outline, panelsPerPage), nil
			},
		})
	}
	strategies = append(strategies, Strategy[[]domain.Panel]{
		Name: "splitter",
		Run: func(ctx context.Context) ([]domain.Panel, error) {
			return splitScript(outline, panelsPerPage, s.bridgingOffset(ctx, ownerID)), nil
		},
	})
	return NewChain("script", s.metrics, strategies...).Execute(ctx)
}

// bridgingOffset は所有者ごとの回転カーソルを進め、つなぎ台詞の開始位置を返します。
func (s *Scriptwriter) bridgingOffset(ctx context.Context, ownerID string) int {
	if s.rotator == nil {
		return 0
	}
	idx, err := s.rotator.NextRotation(ctx, "bridging:"+ownerID, len(bridgingPhrases))
	if err != nil {
		slog.WarnContext(ctx, "Rotation cursor unavailable, starting at 0", "error", err)
		return 0
	}
	return idx
}

// normalizePanels は件数を揃え、空欄と不正な値を補正し、隣接する同一台詞を置き換えます。
func normalizePanels(in []domain.Panel, outline []string, panelsPerPage int) []domain.Panel {
	total := len(outline) * panelsPerPage
	out := make([]domain.Panel, total)
	bridge := 0
	for i := range out {
		page := i / panelsPerPage
		local := i % panelsPerPage
		var p domain.Panel
		if i < len(in) {
			p = in[i]
		} else {
			p = domain.Panel{BubbleType: domain.BubbleNarration}
		}

		p.PanelIndex = local + 1
		p.Dialogue = strings.TrimSpace(p.Dialogue)
		p.SceneDescription = strings.TrimSpace(p.SceneDescription)
		p.Emotion = strings.ToLower(strings.TrimSpace(p.Emotion))
		if p.Dialogue == "" {
			p.Dialogue = bridgingPhrases[bridge%len(bridgingPhrases)]
			bridge++
		}
		if p.SceneDescription == "" {
			p.SceneDescription = outline[page]
		}
		if p.Emotion == "" {
			p.Emotion = defaultEmotion
		}
		if p.BubbleType != domain.BubbleSpeech && p.BubbleType != domain.BubbleNarration {
			p.BubbleType = domain.BubbleSpeech
		}
		if !p.BubblePosition.IsValid() {
			p.BubblePosition = domain.BubblePositions[local%len(domain.BubblePositions)]
		}
		out[i] = p
	}
	dedupeAdjacent(out, bridge)
	return out
}

// splitScript は章の文を順にコマへ割り当て、足りない分はつなぎ台詞で埋めます。
// つなぎ台詞は物語全体で通しのカウンタを使うため、隣接するコマで同じ句は出ません。
func splitScript(outline []string, panelsPerPage, offset int) []domain.Panel {
	out := make([]domain.Panel, 0, len(outline)*panelsPerPage)
	counter := offset
	for page, chapter := range outline {
		sentences := splitSentences(chapter)
		for k := 0; k < panelsPerPage; k++ {
			p := domain.Panel{
				PanelIndex:     k + 1,
				Emotion:        fallbackEmotions[(page+k)%len(fallbackEmotions)],
				BubbleType:     domain.BubbleSpeech,
				BubblePosition: domain.BubblePositions[k%len(domain.BubblePositions)],
			}
			if k < len(sentences) {
				p.Dialogue = sentences[k]
				p.SceneDescription = sentences[k]
			} else {
				p.Dialogue = bridgingPhrases[counter%len(bridgingPhrases)]
				p.SceneDescription = chapter
				counter++
			}
			if k == 0 {
				p.BubbleType = domain.BubbleNarration
			}
			out = append(out, p)
		}
	}
	dedupeAdjacent(out, counter)
	return out
}

// dedupeAdjacent は直前のコマと同じ台詞を、どちらとも異なるつなぎ台詞に置き換えます。
func dedupeAdjacent(panels []domain.Panel, counter int) {
	for i := 1; i < len(panels); i++ {
		if panels[i].Dialogue != panels[i-1].Dialogue {
			continue
		}
		next := ""
		if i+1 < len(panels) {
			next = panels[i+1].Dialogue
		}
		for range bridgingPhrases {
			candidate := bridgingPhrases[counter%len(bridgingPhrases)]
			counter++
			if candidate != panels[i-1].Dialogue && candidate != next {
				panels[i].Dialogue = candidate
				break
			}
		}
	}
}

// splitSentences は終端記号 (. ! ?) の後の空白で文を区切ります。記号は文に残します。
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func scriptSystemPrompt(bundle string, panelsPerPage int) string {
	return fmt.Sprintf(`You are a comic book scriptwriter for children aged 5-10.
Write the panels for every page of the story in one continuous script so dialogue and scenes flow across page boundaries.
Each page has exactly %d panels.

Characters and setting (use them consistently):
%s

Every panel must have:
- dialogue: a short line (under 15 words), never empty, never identical to the previous panel
- sceneDescription: what the illustrator should draw
- emotion: one word
- bubbleType: "speech" or "narration"
- bubblePosition: one of top-left, top-center, top-right, bottom-left, bottom-center, bottom-right`, panelsPerPage, bundle)
}

func scriptUserPrompt(outline []string, panelsPerPage int) string {
	var b strings.Builder
	for i, chapter := range outline {
		fmt.Fprintf(&b, "Page %d: %s\n", i+1, chapter)
	}
	fmt.Fprintf(&b, "\nReturn a JSON array of exactly %d panels in page order.", len(outline)*panelsPerPage)
	return b.String()
}
