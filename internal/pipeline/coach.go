package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"graphic-novel-web/internal/domain"

	"github.com/go-playground/validator/v10"
)

// coachConfidence は講評 API が返す固定の信頼度です。
const coachConfidence = 0.85

// mockCoaching はプロバイダーがすべて失敗した場合の講評です。
var mockCoaching = domain.Coaching{
	Detected: "Your awesome drawing!",
	Suggestions: []string{
		"Add more colors to make it pop!",
		"Give characters specific expressions",
		"Draw a background setting",
	},
	Feedback: "Nice drawing! I love the effort you put into it. Keep practicing and adding more details!",
}

var coachSlotContext = [4]string{
	"main character or hero",
	"second character, villain, or sidekick",
	"setting or background scene",
	"extra element like a pet or magical object",
}

var coachVibeContext = map[domain.Vibe]string{
	domain.VibeAdventure: "an exciting adventure story",
	domain.VibeFunny:     "a funny comedy story",
	domain.VibeFairytale: "a magical fairy tale",
	domain.VibeSchool:    "a school life story",
}

// Coacher は講評を構造化データで返すプロバイダーです。
type Coacher interface {
	Coach(ctx context.Context, prompt string, image []byte, mimeType string) (*domain.Coaching, error)
}

// AssetCoach は素材画像 1 枚に対して、改善のヒントを返す有料機能です。
type AssetCoach struct {
	vision   VisionAnalyzer
	coacher  Coacher
	fetcher  AssetFetcher
	gate     SafetyGate
	ledger   Ledger
	timeout  time.Duration
	metrics  Metrics
	validate *validator.Validate
}

// NewAssetCoach は AssetCoach を作成します。vision と coacher は nil でも動作します (固定の講評を返します)。
func NewAssetCoach(vision VisionAnalyzer, coacher Coacher, fetcher AssetFetcher, gate SafetyGate, ledger Ledger, timeout time.Duration, metrics Metrics) *AssetCoach {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AssetCoach{
		vision:   vision,
		coacher:  coacher,
		fetcher:  fetcher,
		gate:     gate,
		ledger:   ledger,
		timeout:  timeout,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Coach は安全性チェックとクレジット消費の後、講評を生成します。講評の生成自体は失敗しません。
func (c *AssetCoach) Coach(ctx context.Context, req domain.CoachRequest) (*domain.CoachResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if c.gate != nil {
		if err := c.gate.Check(ctx, nil, []string{req.ImageURL}); err != nil {
			return nil, err
		}
	}
	if _, err := c.ledger.Reserve(ctx, req.OwnerID, domain.CoachingCost); err != nil {
		return nil, err
	}

	instruction := coachContext(domain.ParseVibe(req.Vibe), req.Slot)
	coaching, attempt, err := c.chain(req.ImageURL, instruction).Execute(ctx)
	if err != nil {
		coaching, attempt = mockCoaching, 0
	}
	slog.InfoContext(ctx, "Asset coached", "owner_id", req.OwnerID, "slot", req.Slot, "attempt", attempt)

	return &domain.CoachResult{
		Coaching:       coaching,
		Confidence:     coachConfidence,
		PointsDeducted: domain.CoachingCost,
		Attempt:        attempt,
	}, nil
}

func (c *AssetCoach) chain(imageURL, instruction string) *Chain[domain.Coaching] {
	var strategies []Strategy[domain.Coaching]
	if c.coacher != nil && c.fetcher != nil {
		if c.vision != nil {
			strategies = append(strategies, Strategy[domain.Coaching]{
				Name:    "describe-then-reason",
				Timeout: c.timeout,
				Run: func(ctx context.Context) (domain.Coaching, error) {
					data, mime, err := c.fetcher.Fetch(ctx, imageURL)
					if err != nil {
						return domain.Coaching{}, err
					}
					evidence, err := c.vision.Describe(ctx, data, mime,
						"Describe this drawing in 3-4 sentences. Mention colors, character features, setting, and style. Be specific.")
					if err != nil {
						return domain.Coaching{}, err
					}
					prompt := fmt.Sprintf("%s\n\nVISUAL EVIDENCE FROM DRAWING:\n%q\n\n%s", instruction, evidence, coachFormat)
					return checkCoaching(c.coacher.Coach(ctx, prompt, nil, ""))
				},
			})
		}
		strategies = append(strategies, Strategy[domain.Coaching]{
			Name:    "direct-vision",
			Timeout: c.timeout,
			Run: func(ctx context.Context) (domain.Coaching, error) {
				data, mime, err := c.fetcher.Fetch(ctx, imageURL)
				if err != nil {
					return domain.Coaching{}, err
				}
				return checkCoaching(c.coacher.Coach(ctx, instruction+"\n\n"+coachFormat, data, mime))
			},
		})
	}
	strategies = append(strategies, Strategy[domain.Coaching]{
		Name: "mock",
		Run: func(context.Context) (domain.Coaching, error) {
			return mockCoaching, nil
		},
	})
	return NewChain("coach", c.metrics, strategies...)
}

const coachFormat = `Respond with JSON:
- detected: a short, friendly description of what you see
- suggestions: exactly 3 specific, simple suggestions for this role
- feedback: warm, encouraging feedback (2-3 sentences) praising specific details`

func coachContext(vibe domain.Vibe, slot int) string {
	role := "character"
	if slot >= 1 && slot <= len(coachSlotContext) {
		role = coachSlotContext[slot-1]
	}
	story, ok := coachVibeContext[vibe]
	if !ok {
		story = "a children's story"
	}
	return fmt.Sprintf("You are a friendly art coach for children. This drawing will be used as the %s in %s. "+
		"Analyze the drawing and provide friendly, encouraging suggestions to improve it for this role.", role, story)
}

// checkCoaching は講評の必須項目を検証し、提案を 3 件に揃えます。
func checkCoaching(c *domain.Coaching, err error) (domain.Coaching, error) {
	if err != nil {
		return domain.Coaching{}, err
	}
	if c == nil || strings.TrimSpace(c.Detected) == "" {
		return domain.Coaching{}, errors.New("coaching response has no detected field")
	}
	out := domain.Coaching{
		Detected: strings.TrimSpace(c.Detected),
		Feedback: strings.TrimSpace(c.Feedback),
	}
	for _, s := range c.Suggestions {
		if s = strings.TrimSpace(s); s != "" && len(out.Suggestions) < 3 {
			out.Suggestions = append(out.Suggestions, s)
		}
	}
	for i := 0; len(out.Suggestions) < 3; i++ {
		out.Suggestions = append(out.Suggestions, mockCoaching.Suggestions[i])
	}
	if out.Feedback == "" {
		out.Feedback = mockCoaching.Feedback
	}
	return out, nil
}
