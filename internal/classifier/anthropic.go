package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/resilience"
	"github.com/sells-group/veracity/pkg/anthropic"
)

const anthropicSystemPrompt = `You are a news veracity classifier. Decide whether the article the user sends is fake or real news.
Reply with a single JSON object and nothing else: {"label": "fake" | "real", "p_fake": <probability the article is fake, between 0 and 1>}.`

// AnthropicClassifier asks a Claude model for a verdict.
type AnthropicClassifier struct {
	client anthropic.Client
	model  string
	policy resilience.Policy
}

// NewAnthropicClassifier creates a Gateway backed by the Messages API.
func NewAnthropicClassifier(client anthropic.Client, modelID string, policy resilience.Policy) *AnthropicClassifier {
	return &AnthropicClassifier{client: client, model: modelID, policy: policy}
}

type anthropicVerdict struct {
	Label string   `json:"label"`
	PFake *float64 `json:"p_fake"`
}

// Classify sends text to the model and parses its JSON verdict.
func (c *AnthropicClassifier) Classify(ctx context.Context, text string) (Prediction, error) {
	temp := 0.0
	resp, err := resilience.Call(ctx, c.policy, "anthropic.classify", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       c.model,
			MaxTokens:   64,
			System:      anthropicSystemPrompt,
			Temperature: &temp,
			Messages:    []anthropic.Message{{Role: "user", Content: text}},
		})
	})
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: anthropic classify")
	}
	resp.Usage.LogUsage(c.model, "classify")

	return parseVerdict(resp.Text())
}

// parseVerdict extracts the first JSON object from the model reply.
func parseVerdict(reply string) (Prediction, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Prediction{}, eris.Errorf("classifier: no JSON verdict in reply %q", reply)
	}

	var v anthropicVerdict
	if err := json.Unmarshal([]byte(reply[start:end+1]), &v); err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: decode verdict")
	}
	if v.PFake == nil {
		return Prediction{}, eris.New("classifier: verdict missing p_fake")
	}

	p := FromFakeProbability(*v.PFake)
	if v.Label != "" {
		label, err := model.ParseLabel(v.Label)
		if err != nil {
			return Prediction{}, eris.Wrap(err, "classifier: decode verdict")
		}
		p.Label = label
	}
	if err := p.Validate(); err != nil {
		return Prediction{}, err
	}
	return p, nil
}
