// Package metrics exposes Prometheus collectors for the inference service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/veracity/internal/model"
)

var (
	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "veracity_predictions_total", Help: "Classified texts by predicted label."},
		[]string{"label"},
	)
	CriticalCases = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "veracity_critical_cases_total", Help: "Predictions logged as critical cases."},
	)
	ClassifierErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "veracity_classifier_errors_total", Help: "Failed classification gateway calls."},
	)
	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veracity_latency_seconds",
			Help:    "Prediction latency by stage.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 1.2, 1.5, 2.5, 5},
		},
		[]string{"stage"},
	)
	ReportDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "veracity_report_model_drift", Help: "Model drift from the last generated report."},
	)
	ReportRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "veracity_report_fake_real_ratio", Help: "All-time fake/real ratio from the last generated report."},
	)
	ReportAnomalies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "veracity_report_anomaly", Help: "1 when the last generated report flagged the anomaly."},
		[]string{"anomaly"},
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors with the default registry. Repeated
// calls are no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Predictions, CriticalCases, ClassifierErrors, Latency,
			ReportDrift, ReportRatio, ReportAnomalies)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// ObservePrediction records one logged prediction.
func ObservePrediction(rec model.PredictionRecord, critical bool) {
	Predictions.WithLabelValues(string(rec.Prediction)).Inc()
	Latency.WithLabelValues("total").Observe(rec.LatencyTotal)
	Latency.WithLabelValues("inference").Observe(rec.LatencyInference)
	Latency.WithLabelValues("server").Observe(rec.LatencyServer)
	if critical {
		CriticalCases.Inc()
	}
}

// ObserveReport publishes the headline figures of a generated report.
func ObserveReport(r *model.Report) {
	ReportDrift.Set(r.ModelDrift)
	ReportRatio.Set(r.FakeRealRatio.FakeRealRatio)

	active := map[string]float64{model.AnomalyFakeSpike: 0, model.AnomalyHighLatency: 0}
	for _, a := range r.Anomalies {
		active[a] = 1
	}
	for name, v := range active {
		ReportAnomalies.WithLabelValues(name).Set(v)
	}
}
