package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/veracity/internal/classifier"
	"github.com/sells-group/veracity/internal/config"
	"github.com/sells-group/veracity/internal/inference"
	"github.com/sells-group/veracity/internal/model"
	"github.com/sells-group/veracity/internal/report"
	"github.com/sells-group/veracity/internal/store"
)

type testEnv struct {
	base  string
	store *store.JSONLStore
	srv   *Server
}

func newTestEnv(t *testing.T, gw classifier.Gateway, mutate ...func(*config.ServerConfig)) *testEnv {
	t.Helper()
	base := t.TempDir()
	st := store.NewJSONL(filepath.Join(base, "logs"), "predictions.jsonl", "critical_cases.jsonl")
	agg := report.NewAggregator(st, report.NewWriter(filepath.Join(base, "monthly_reports")), report.DefaultThresholds())

	cfg := config.ServerConfig{CORSOrigins: []string{"*"}}
	for _, m := range mutate {
		m(&cfg)
	}

	srv := NewServer(Deps{
		Service:      inference.NewService(gw, st, 0.55),
		Store:        st,
		Aggregator:   agg,
		MetadataPath: filepath.Join(base, "model_metadata.json"),
	}, cfg)
	return &testEnv{base: base, store: st, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

var confidentFake = classifier.Static(classifier.Prediction{Label: model.LabelFake, Probabilities: [2]float64{0.9, 0.1}})

func TestHealth(t *testing.T) {
	rr := newTestEnv(t, confidentFake).do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	env := newTestEnv(t, confidentFake)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestPredict(t *testing.T) {
	env := newTestEnv(t, confidentFake)
	rr := env.do(t, http.MethodPost, "/predict", `{"text": "moon is cheese"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	out := decode(t, rr)
	assert.Equal(t, "fake", out["prediction"])
	assert.Equal(t, 0.9, out["confidence"])
	assert.Equal(t, map[string]any{"fake": 0.9, "real": 0.1}, out["probabilities"])
	assert.Contains(t, out, "latency")
	assert.Equal(t, false, out["critical"])

	recs, err := store.Collect(env.store.Predictions(context.Background()))
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestPredict_BadRequests(t *testing.T) {
	env := newTestEnv(t, confidentFake)

	rr := env.do(t, http.MethodPost, "/predict", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/predict", `{"text": ""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "text is required", decode(t, rr)["error"])

	rr = env.do(t, http.MethodPost, "/predict", `{"text": 42}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPredict_GatewayFailure(t *testing.T) {
	gw := classifier.Func(func(context.Context, string) (classifier.Prediction, error) {
		return classifier.Prediction{}, errors.New("down")
	})
	rr := newTestEnv(t, gw).do(t, http.MethodPost, "/predict", `{"text": "x"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestPredict_PersistFailure(t *testing.T) {
	env := newTestEnv(t, confidentFake)
	// make the log directory path a regular file
	require.NoError(t, os.WriteFile(filepath.Join(env.base, "logs"), nil, 0o644))

	rr := env.do(t, http.MethodPost, "/predict", `{"text": "x"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestPredict_RateLimited(t *testing.T) {
	env := newTestEnv(t, confidentFake, func(c *config.ServerConfig) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})
	h := env.srv.Handler()

	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"text": "x"}`)))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	// other routes are not limited
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMonthlyReport_NoData(t *testing.T) {
	rr := newTestEnv(t, confidentFake).do(t, http.MethodGet, "/monthly-report", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"status": "no_data"}, decode(t, rr))
}

func TestMonthlyReport(t *testing.T) {
	env := newTestEnv(t, confidentFake)
	for range 2 {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", `{"text": "x"}`).Code)
	}

	rr := env.do(t, http.MethodGet, "/monthly-report", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, map[string]any{"total_predictions": 2.0}, out["server_health"])
	assert.Equal(t, []any{model.AnomalyFakeSpike}, out["anomalies"])

	now := time.Now()
	assert.FileExists(t, filepath.Join(env.base, "monthly_reports",
		"report_"+now.Format("2006")+"_"+now.Format("01")+".json"))
}

func TestCriticalCases_Empty(t *testing.T) {
	rr := newTestEnv(t, confidentFake).do(t, http.MethodGet, "/critical-cases", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, []any{}, out["cases"])
	assert.Equal(t, "No critical cases yet.", out["message"])
}

func TestCriticalCases(t *testing.T) {
	unsure := classifier.Static(classifier.Prediction{Label: model.LabelReal, Probabilities: [2]float64{0.49, 0.51}})
	env := newTestEnv(t, unsure)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", `{"text": "coin flip"}`).Code)

	rr := env.do(t, http.MethodGet, "/critical-cases", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.NotContains(t, out, "message")
	cases, ok := out["cases"].([]any)
	require.True(t, ok)
	require.Len(t, cases, 1)
	c := cases[0].(map[string]any)
	assert.Equal(t, "coin flip", c["text"])
	assert.Equal(t, "real", c["prediction"])
}

func TestModelInfo(t *testing.T) {
	env := newTestEnv(t, confidentFake)

	rr := env.do(t, http.MethodGet, "/model-info", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, os.WriteFile(filepath.Join(env.base, "model_metadata.json"),
		[]byte(`{"model_name": "tfidf-logreg", "accuracy": 0.94}`), 0o644))
	rr = env.do(t, http.MethodGet, "/model-info", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "tfidf-logreg", decode(t, rr)["model_name"])
}

func TestMetricsEndpoint(t *testing.T) {
	rr := newTestEnv(t, confidentFake).do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStaticUI(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>veracity</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "script.js"), []byte("console.log(1)"), 0o644))

	env := newTestEnv(t, confidentFake, func(c *config.ServerConfig) { c.StaticDir = static })

	rr := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "veracity")

	rr = env.do(t, http.MethodGet, "/static/script.js", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "console.log")
}

func TestStaticUIMissingDir(t *testing.T) {
	env := newTestEnv(t, confidentFake, func(c *config.ServerConfig) { c.StaticDir = "/does/not/exist" })
	rr := env.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, confidentFake)
	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
