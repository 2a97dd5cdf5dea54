package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/pkg/anthropic"
)

type fakeAnthropic struct {
	reply string
	err   error
	last  anthropic.MessageRequest
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 40, OutputTokens: 12},
	}, nil
}

func TestAnthropicClassifier_Classify(t *testing.T) {
	fake := &fakeAnthropic{reply: `{"label": "fake", "p_fake": 0.91}`}
	c := NewAnthropicClassifier(fake, "claude-haiku-4-5-20251001", testPolicy())

	p, err := c.Classify(context.Background(), "aliens endorse candidate")
	require.NoError(t, err)
	assert.Equal(t, model.LabelFake, p.Label)
	assert.InDelta(t, 0.91, p.Fake(), 1e-9)
	assert.InDelta(t, 0.09, p.Real(), 1e-9)

	assert.Equal(t, "claude-haiku-4-5-20251001", fake.last.Model)
	require.Len(t, fake.last.Messages, 1)
	assert.Equal(t, "aliens endorse candidate", fake.last.Messages[0].Content)
	assert.NotEmpty(t, fake.last.System)
}

func TestAnthropicClassifier_Error(t *testing.T) {
	c := NewAnthropicClassifier(&fakeAnthropic{err: errors.New("overloaded")}, "m", testPolicy())
	_, err := c.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic classify")
}

func TestParseVerdict(t *testing.T) {
	p, err := parseVerdict("Sure! ```json\n{\"label\": \"real\", \"p_fake\": 0.2}\n```")
	require.NoError(t, err)
	assert.Equal(t, model.LabelReal, p.Label)

	// label falls back to p_fake
	p, err = parseVerdict(`{"p_fake": 0.7}`)
	require.NoError(t, err)
	assert.Equal(t, model.LabelFake, p.Label)

	_, err = parseVerdict("I cannot decide")
	assert.Error(t, err)

	_, err = parseVerdict(`{"label": "fake"}`)
	assert.Error(t, err)

	_, err = parseVerdict(`{"label": "unsure", "p_fake": 0.5}`)
	assert.ErrorIs(t, err, model.ErrUnknownLabel)

	_, err = parseVerdict(`{"label": "fake", "p_fake": 1.5}`)
	assert.Error(t, err)
}
