package model

// Anomaly messages surfaced in monthly reports.
const (
	AnomalyFakeSpike   = "Unusual spike in fake news detected!"
	AnomalyHighLatency = "Total latency unusually high."
	ReportStatusNoData = "no_data"
)

// Report is the monthly statistical summary of the prediction log.
type Report struct {
	Timestamp               Timestamp     `json:"timestamp"`
	FakeRealRatio           LabelRatio    `json:"fake_real_ratio"`
	AverageConfidence       float64       `json:"average_confidence"`
	AverageLatencyTotal     float64       `json:"average_latency_total"`
	AverageLatencyInference float64       `json:"average_latency_inference"`
	AverageLatencyServer    float64       `json:"average_latency_server"`
	ModelDrift              float64       `json:"model_drift"`
	ErrorAnalysis           ErrorAnalysis `json:"error_analysis"`
	ServerHealth            ServerHealth  `json:"server_health"`
	Anomalies               []string      `json:"anomalies"`
}

// LabelRatio holds label counts and fake / max(real, 1).
type LabelRatio struct {
	Fake          int     `json:"fake"`
	Real          int     `json:"real"`
	FakeRealRatio float64 `json:"fake_real_ratio"`
}

// NewLabelRatio computes the ratio for the given counts.
func NewLabelRatio(fakeCount, realCount int) LabelRatio {
	return LabelRatio{
		Fake:          fakeCount,
		Real:          realCount,
		FakeRealRatio: float64(fakeCount) / float64(max(realCount, 1)),
	}
}

// ErrorAnalysis counts records that crossed the review thresholds.
type ErrorAnalysis struct {
	LowConfidenceCases int `json:"low_confidence_cases"`
	HighLatencyCases   int `json:"high_latency_cases"`
}

// ServerHealth summarizes service volume.
type ServerHealth struct {
	TotalPredictions int `json:"total_predictions"`
}

// NoDataResponse is rendered when there is nothing to summarize.
type NoDataResponse struct {
	Status string `json:"status"`
}
