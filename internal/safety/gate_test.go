package safety

import (
	"context"
	"errors"
	"testing"

	"graphic-novel-web/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	textSafe  bool
	imageSafe bool
	err       error
	calls     int
}

func (c *fakeClassifier) IsSafeText(context.Context, string) (bool, error) {
	c.calls++
	return c.textSafe, c.err
}

func (c *fakeClassifier) IsSafeImage(context.Context, []byte, string) (bool, error) {
	c.calls++
	return c.imageSafe, c.err
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("img"), "image/png", nil
}

func TestBlocklistRejectsBeforeClassifier(t *testing.T) {
	c := &fakeClassifier{textSafe: true, imageSafe: true}
	g := NewGate([]string{"dragon fire"}, c, fakeFetcher{}, 0)

	tests := []string{
		"The hero wants to KILL the dragon",
		"ｋｉｌｌ",
		"a story about dragon, fire and friends",
		"the pirates killed everyone",
		"kids with guns",
		"a murderer in the castle",
		"a gory ending",
		"the dragons fired at the town",
		"two terrorists",
	}
	for _, text := range tests {
		err := g.Check(context.Background(), []string{"a nice story", text}, nil)
		assert.ErrorIs(t, err, domain.ErrSafetyRefusal, text)
	}
	assert.Zero(t, c.calls, "blocklist hits must not reach the classifier")
}

func TestBlocklistAllowsUnrelatedWords(t *testing.T) {
	g := NewGate([]string{"ass"}, nil, nil, 0)
	for _, text := range []string{
		"Skills at school",
		"a gunnery ship",
		"the ship's gunner waved",
		"a sextant and a map",
		"homework assignment in class",
		"a brave knight and a gorilla",
	} {
		assert.NoError(t, g.Check(context.Background(), []string{text}, nil), text)
	}
	assert.NoError(t, g.Check(context.Background(), nil, nil))
}

func TestBlocklistWithoutClassifierRejectsInflections(t *testing.T) {
	g := NewGate(nil, nil, nil, 0)
	for _, text := range []string{"the pirates killed everyone", "kids with guns", "a murderer", "nudity", "killing time"} {
		assert.ErrorIs(t, g.Check(context.Background(), []string{text}, nil), domain.ErrSafetyRefusal, text)
	}
}

func TestClassifierVerdicts(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a brave cat"}
	images := []string{"https://example.com/cat.png"}

	t.Run("all safe", func(t *testing.T) {
		c := &fakeClassifier{textSafe: true, imageSafe: true}
		require.NoError(t, NewGate(nil, c, fakeFetcher{}, 0).Check(ctx, texts, images))
		assert.Equal(t, 2, c.calls)
	})

	t.Run("unsafe text", func(t *testing.T) {
		c := &fakeClassifier{textSafe: false, imageSafe: true}
		assert.ErrorIs(t, NewGate(nil, c, fakeFetcher{}, 0).Check(ctx, texts, images), domain.ErrSafetyRefusal)
	})

	t.Run("unsafe image", func(t *testing.T) {
		c := &fakeClassifier{textSafe: true, imageSafe: false}
		err := NewGate(nil, c, fakeFetcher{}, 0).Check(ctx, texts, images)
		var safetyErr *domain.SafetyError
		require.ErrorAs(t, err, &safetyErr)
		assert.Contains(t, safetyErr.Reason, "asset 1")
	})

	t.Run("classifier outage fails closed", func(t *testing.T) {
		c := &fakeClassifier{err: errors.New("503")}
		assert.ErrorIs(t, NewGate(nil, c, fakeFetcher{}, 0).Check(ctx, texts, images), domain.ErrSafetyRefusal)
	})

	t.Run("unreadable asset is invalid input", func(t *testing.T) {
		c := &fakeClassifier{textSafe: true, imageSafe: true}
		err := NewGate(nil, c, fakeFetcher{err: errors.New("404")}, 0).Check(ctx, texts, images)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.NotErrorIs(t, err, domain.ErrSafetyRefusal)
	})
}

func TestContainsSequence(t *testing.T) {
	g := NewGate(nil, nil, nil, 0)
	assert.True(t, g.containsSequence([]string{"a", "b", "c"}, []string{"b", "c"}))
	assert.False(t, g.containsSequence([]string{"a", "b", "c"}, []string{"c", "b"}))
	assert.False(t, g.containsSequence([]string{"a"}, []string{"a", "b"}))
	assert.True(t, g.containsSequence([]string{"dragons", "fired"}, []string{"dragon", "fire"}))
}
