package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/resilience"
)

// HTTPClient calls a model server exposing POST /classify.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	policy     resilience.Policy
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label              string    `json:"label"`
	ClassProbabilities []float64 `json:"class_probabilities"`
}

// NewHTTPClient creates a client for the model server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, policy resilience.Policy) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}
}

// Classify sends text to the model server.
func (c *HTTPClient) Classify(ctx context.Context, text string) (Prediction, error) {
	p, err := resilience.Call(ctx, c.policy, "classify", func(ctx context.Context) (Prediction, error) {
		return c.classifyOnce(ctx, text)
	})
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: http classify")
	}
	return p, nil
}

func (c *HTTPClient) classifyOnce(ctx context.Context, text string) (Prediction, error) {
	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, resilience.Transient(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Prediction{}, resilience.Transient(err, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Prediction{}, resilience.StatusError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out classifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Prediction{}, eris.Wrap(err, "classifier: decode response")
	}
	return out.prediction()
}

func (r classifyResponse) prediction() (Prediction, error) {
	if len(r.ClassProbabilities) != 2 {
		return Prediction{}, eris.Errorf("classifier: expected 2 class probabilities, got %d", len(r.ClassProbabilities))
	}
	p := Prediction{Probabilities: [2]float64{r.ClassProbabilities[0], r.ClassProbabilities[1]}}

	switch r.Label {
	case "":
		// argmax over [p_fake, p_real]; ties go to fake
		p.Label = model.LabelReal
		if p.Probabilities[0] >= p.Probabilities[1] {
			p.Label = model.LabelFake
		}
	case "0":
		p.Label = model.LabelFake
	case "1":
		p.Label = model.LabelReal
	default:
		label, err := model.ParseLabel(r.Label)
		if err != nil {
			return Prediction{}, eris.Wrap(err, "classifier: decode response")
		}
		p.Label = label
	}

	if err := p.Validate(); err != nil {
		return Prediction{}, err
	}
	return p, nil
}
