package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/resilience"
)

func testPolicy() resilience.Policy {
	return resilience.Policy{
		Backoff: resilience.Backoff{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
		Breaker: resilience.NewBreaker("test", 5, time.Minute),
	}
}

func TestHTTPClient_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "breaking news", req.Text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"label":               "fake",
			"class_probabilities": []float64{0.82, 0.18},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, testPolicy())
	p, err := c.Classify(context.Background(), "breaking news")
	require.NoError(t, err)
	assert.Equal(t, model.LabelFake, p.Label)
	assert.Equal(t, [2]float64{0.82, 0.18}, p.Probabilities)
	assert.Equal(t, 0.82, p.Confidence())
}

func TestHTTPClient_LabelFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		label string
		probs []float64
		want  model.Label
	}{
		{"argmax real", "", []float64{0.2, 0.8}, model.LabelReal},
		{"argmax tie", "", []float64{0.5, 0.5}, model.LabelFake},
		{"index zero", "0", []float64{0.9, 0.1}, model.LabelFake},
		{"index one", "1", []float64{0.1, 0.9}, model.LabelReal},
		{"upper case", "REAL", []float64{0.4, 0.6}, model.LabelReal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := classifyResponse{Label: tt.label, ClassProbabilities: tt.probs}.prediction()
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Label)
		})
	}
}

func TestHTTPClient_BadResponses(t *testing.T) {
	_, err := classifyResponse{Label: "fake", ClassProbabilities: []float64{1}}.prediction()
	assert.Error(t, err)

	_, err = classifyResponse{Label: "satire", ClassProbabilities: []float64{0.5, 0.5}}.prediction()
	assert.ErrorIs(t, err, model.ErrUnknownLabel)

	_, err = classifyResponse{Label: "fake", ClassProbabilities: []float64{2, -1}}.prediction()
	assert.Error(t, err)
}

func TestHTTPClient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"label":               "real",
			"class_probabilities": []float64{0.1, 0.9},
		})
	}))
	defer srv.Close()

	p, err := NewHTTPClient(srv.URL, time.Second, testPolicy()).Classify(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, model.LabelReal, p.Label)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "text too long", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second, testPolicy()).Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	policy := testPolicy()
	policy.Breaker = resilience.NewBreaker("test", 2, time.Minute)
	c := NewHTTPClient(srv.URL, time.Second, policy)

	_, err := c.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, resilience.Open, policy.Breaker.State())

	before := calls.Load()
	_, err = c.Classify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, before, calls.Load())
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second, testPolicy()).Classify(context.Background(), "x")
	require.Error(t, err)
}
