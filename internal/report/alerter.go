package report

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/model"
)

// AlertType identifies the kind of anomaly alert.
type AlertType string

const (
	AlertFakeSpike   AlertType = "fake_spike"
	AlertHighLatency AlertType = "high_latency"
	AlertOther       AlertType = "anomaly"
)

// Alert is the webhook payload for one report anomaly.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns report anomalies into webhook notifications.
type Alerter struct {
	webhookURL string
	client     *http.Client
}

// NewAlerter creates an Alerter posting to webhookURL. An empty URL disables
// delivery.
func NewAlerter(webhookURL string) *Alerter {
	return &Alerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate builds one alert per anomaly in r.
func (a *Alerter) Evaluate(r *model.Report) []Alert {
	alerts := make([]Alert, 0, len(r.Anomalies))
	for _, msg := range r.Anomalies {
		alert := Alert{
			Type:      AlertOther,
			Severity:  "medium",
			Message:   msg,
			Timestamp: r.Timestamp.UTC(),
		}
		switch msg {
		case model.AnomalyFakeSpike:
			alert.Type = AlertFakeSpike
			alert.Severity = "high"
			alert.Details = map[string]any{
				"fake":            r.FakeRealRatio.Fake,
				"real":            r.FakeRealRatio.Real,
				"fake_real_ratio": r.FakeRealRatio.FakeRealRatio,
				"model_drift":     r.ModelDrift,
			}
		case model.AnomalyHighLatency:
			alert.Type = AlertHighLatency
			alert.Details = map[string]any{
				"average_latency_total":     r.AverageLatencyTotal,
				"average_latency_inference": r.AverageLatencyInference,
				"high_latency_cases":        r.ErrorAnalysis.HighLatencyCases,
			}
		}
		alerts = append(alerts, alert)
	}
	return alerts
}

// SendAlerts delivers alerts to the webhook and returns how many succeeded.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.webhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("report: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "report: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "report: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "report: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("report: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
