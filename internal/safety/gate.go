// Package safety は有料の生成処理より前に、入力テキストと素材画像の安全性を判定します。
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"graphic-novel-web/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultBlockedTerms は設定に関わらず常に拒否する語句です。
var DefaultBlockedTerms = []string{
	"kill", "murder", "blood", "gore", "gun", "suicide", "naked", "nude",
	"sex", "porn", "drugs", "cocaine", "torture", "terrorist",
}

// DefaultAllowedWords はブロック語句の活用形に見えても拒否しない語です。
var DefaultAllowedWords = []string{"gunner", "gunners", "gunnery", "skills", "sexton", "sextant"}

// inflectionSuffixes はブロック語句の語幹に付く活用語尾です。
var inflectionSuffixes = map[string]struct{}{
	"s": {}, "es": {}, "d": {}, "ed": {}, "er": {}, "ers": {}, "ing": {}, "ings": {},
	"y": {}, "ier": {}, "iest": {}, "ies": {}, "ous": {}, "ist": {}, "ists": {}, "ity": {},
}

// Classifier は確率的な内容分類器です。
type Classifier interface {
	IsSafeText(ctx context.Context, text string) (bool, error)
	IsSafeImage(ctx context.Context, image []byte, mimeType string) (bool, error)
}

// ImageFetcher は画像参照からバイト列を取得します。
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, string, error)
}

// Gate はブロックリストと分類器を組み合わせた安全性チェックです。
type Gate struct {
	terms      [][]string
	allowed    map[string]struct{}
	classifier Classifier
	fetcher    ImageFetcher
	timeout    time.Duration
}

// NewGate は Gate を作成します。classifier が nil の場合はブロックリストのみで判定します。
func NewGate(extraTerms []string, classifier Classifier, fetcher ImageFetcher, timeout time.Duration) *Gate {
	g := &Gate{
		classifier: classifier,
		fetcher:    fetcher,
		timeout:    timeout,
		allowed:    make(map[string]struct{}, len(DefaultAllowedWords)),
	}
	for _, w := range DefaultAllowedWords {
		for _, tok := range tokenize(w) {
			g.allowed[tok] = struct{}{}
		}
	}
	for _, term := range append(append([]string(nil), DefaultBlockedTerms...), extraTerms...) {
		if tokens := tokenize(term); len(tokens) > 0 {
			g.terms = append(g.terms, tokens)
		}
	}
	return g
}

// Check は texts と imageRefs を検査します。拒否時は *domain.SafetyError を返します。
// 分類器の通信エラーも拒否として扱います。
func (g *Gate) Check(ctx context.Context, texts []string, imageRefs []string) error {
	joined := strings.TrimSpace(strings.Join(texts, " "))
	if term, ok := g.matchBlocked(joined); ok {
		slog.InfoContext(ctx, "Safety gate rejected text by blocklist", "term", term)
		return &domain.SafetyError{Reason: "blocklist"}
	}

	if g.classifier == nil {
		return nil
	}

	if joined != "" {
		safe, err := g.classifyText(ctx, joined)
		if err != nil {
			slog.WarnContext(ctx, "Safety classifier failed on text, failing closed", "error", err)
			return &domain.SafetyError{Reason: "classifier unavailable"}
		}
		if !safe {
			return &domain.SafetyError{Reason: "text classified unsafe"}
		}
	}

	for i, ref := range imageRefs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		data, mime, err := g.fetcher.Fetch(ctx, ref)
		if err != nil {
			return fmt.Errorf("%w: asset %d could not be read: %v", domain.ErrInvalidInput, i+1, err)
		}
		safe, err := g.classifyImage(ctx, data, mime)
		if err != nil {
			slog.WarnContext(ctx, "Safety classifier failed on image, failing closed", "asset", i+1, "error", err)
			return &domain.SafetyError{Reason: "classifier unavailable"}
		}
		if !safe {
			return &domain.SafetyError{Reason: fmt.Sprintf("asset %d classified unsafe", i+1)}
		}
	}
	return nil
}

func (g *Gate) classifyText(ctx context.Context, text string) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.classifier.IsSafeText(ctx, text)
}

func (g *Gate) classifyImage(ctx context.Context, data []byte, mime string) (bool, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()
	return g.classifier.IsSafeImage(ctx, data, mime)
}

func (g *Gate) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// matchBlocked は正規化したトークン列の中に、ブロック語句 (活用形を含む) のトークン列が連続して現れるかを調べます。
func (g *Gate) matchBlocked(text string) (string, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return "", false
	}
	for _, term := range g.terms {
		if g.containsSequence(tokens, term) {
			return strings.Join(term, " "), true
		}
	}
	return "", false
}

// tokenize は NFKC 正規化と case folding の後、英数字以外で分割します。
// cases.Caser は並行利用できないため呼び出しごとに作成します。
func tokenize(s string) []string {
	normalized := cases.Fold().String(norm.NFKC.String(s))
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (g *Gate) containsSequence(tokens, seq []string) bool {
	if len(seq) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j, s := range seq {
			if !g.matchesTerm(tokens[i+j], s) {
				continue outer
			}
		}
		return true
	}
	return false
}

// matchesTerm は token が term そのもの、または term の活用形 (killed, guns, murderer, gory) かを判定します。
func (g *Gate) matchesTerm(token, term string) bool {
	if token == term {
		return true
	}
	if _, ok := g.allowed[token]; ok {
		return false
	}
	for _, stem := range stems(term) {
		if suffix, ok := strings.CutPrefix(token, stem); ok {
			if _, ok := inflectionSuffixes[suffix]; ok {
				return true
			}
		}
	}
	return false
}

// stems は活用形を作る語幹を返します。子音終わりは子音を重ねた形 (gun → gunn)、e 終わりは e を落とした形 (gore → gor) も含みます。
func stems(term string) []string {
	out := []string{term}
	r := []rune(term)
	if len(r) < 2 {
		return out
	}
	last := r[len(r)-1]
	switch {
	case last == 'e':
		out = append(out, string(r[:len(r)-1]))
	case unicode.IsLetter(last) && !strings.ContainsRune("aeiouy", last):
		out = append(out, term+string(last))
	}
	return out
}
