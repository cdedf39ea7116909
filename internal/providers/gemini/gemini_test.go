package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"SAFE", true},
		{"  safe\n", true},
		{"UNSAFE", false},
		{"This is unsafe.", false},
		{"", false},
		{"I cannot decide", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseVerdict(tt.text), tt.text)
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `["a","b"]`, stripCodeFence("```json\n[\"a\",\"b\"]\n```"))
	assert.Equal(t, `["a"]`, stripCodeFence(` ["a"] `))
}

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "image/png", normalizeMIME("image/png; charset=binary"))
	assert.Equal(t, "image/jpeg", normalizeMIME("text/plain"))
	assert.Equal(t, "image/jpeg", normalizeMIME(""))
}

func TestCheckBlocked(t *testing.T) {
	assert.ErrorIs(t, checkBlocked(nil), ErrEmptyResponse)
	assert.ErrorIs(t, checkBlocked(&genai.GenerateContentResponse{}), ErrEmptyResponse)

	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}
	assert.ErrorIs(t, checkBlocked(blocked), ErrBlocked)
}

func TestExtractImage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your page"},
				{InlineData: &genai.Blob{Data: []byte{1, 2, 3}}},
			}},
		}},
	}
	img, err := extractImage(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, img.Data)
	assert.Equal(t, "image/png", img.MIMEType)

	textOnly := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}}}},
	}
	_, err = extractImage(textOnly)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}

func TestChildSafetySettings(t *testing.T) {
	settings := childSafetySettings()
	require.Len(t, settings, 4)
	for _, s := range settings {
		assert.Equal(t, genai.HarmBlockThresholdBlockLowAndAbove, s.Threshold)
	}
}
