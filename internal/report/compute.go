// Package report aggregates the prediction log into monthly reports.
package report

import (
	"time"

	"github.com/sells-group/veracity/internal/model"
)

// Thresholds holds the four independent report tunables.
type Thresholds struct {
	// LowConfidence counts predictions below it as low-confidence cases.
	LowConfidence float64
	// HighLatency counts predictions slower than it (seconds) as high-latency cases.
	HighLatency float64
	// FakeSpikeMultiplier flags an anomaly when fake > multiplier * real.
	FakeSpikeMultiplier float64
	// LatencyAnomaly flags an anomaly when the mean total latency (seconds) exceeds it.
	LatencyAnomaly float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowConfidence:       0.55,
		HighLatency:         1.2,
		FakeSpikeMultiplier: 1.5,
		LatencyAnomaly:      1.5,
	}
}

// DriftMode selects how the previous month is chosen for drift.
type DriftMode string

const (
	// DriftCalendarMonth compares month numbers only: January is compared
	// with any December in the log, regardless of year.
	DriftCalendarMonth DriftMode = "calendar_month"
	// DriftYearMonth compares against the immediately preceding year-month.
	DriftYearMonth DriftMode = "year_month"
)

// Compute summarizes records as of now. It returns false when there are no
// records. The result depends only on its arguments.
func Compute(records []model.PredictionRecord, now time.Time, th Thresholds, mode DriftMode) (*model.Report, bool) {
	if len(records) == 0 {
		return nil, false
	}

	var (
		fakeCount, realCount             int
		sumConf, sumTotal, sumInf, sumSv float64
		lowConf, highLatency             int
		current, previous                []model.Label
	)

	inCurrent, inPrevious := monthMatchers(now, mode)

	for _, r := range records {
		switch r.Prediction {
		case model.LabelFake:
			fakeCount++
		case model.LabelReal:
			realCount++
		}

		sumConf += r.Confidence
		sumTotal += r.LatencyTotal
		sumInf += r.LatencyInference
		sumSv += r.LatencyServer

		if r.Confidence < th.LowConfidence {
			lowConf++
		}
		if r.LatencyTotal > th.HighLatency {
			highLatency++
		}

		switch {
		case inCurrent(r.Timestamp.Time):
			current = append(current, r.Prediction)
		case inPrevious(r.Timestamp.Time):
			previous = append(previous, r.Prediction)
		}
	}

	n := float64(len(records))
	avgTotal := sumTotal / n

	anomalies := []string{}
	if float64(fakeCount) > th.FakeSpikeMultiplier*float64(realCount) {
		anomalies = append(anomalies, model.AnomalyFakeSpike)
	}
	if avgTotal > th.LatencyAnomaly {
		anomalies = append(anomalies, model.AnomalyHighLatency)
	}

	return &model.Report{
		Timestamp:               model.Timestamp{Time: now},
		FakeRealRatio:           model.NewLabelRatio(fakeCount, realCount),
		AverageConfidence:       sumConf / n,
		AverageLatencyTotal:     avgTotal,
		AverageLatencyInference: sumInf / n,
		AverageLatencyServer:    sumSv / n,
		ModelDrift:              partitionRatio(current) - partitionRatio(previous),
		ErrorAnalysis: model.ErrorAnalysis{
			LowConfidenceCases: lowConf,
			HighLatencyCases:   highLatency,
		},
		ServerHealth: model.ServerHealth{TotalPredictions: len(records)},
		Anomalies:    anomalies,
	}, true
}

// partitionRatio is fake / max(real, 1), or 0 for an empty partition.
func partitionRatio(labels []model.Label) float64 {
	if len(labels) == 0 {
		return 0
	}
	var fakeCount, realCount int
	for _, l := range labels {
		switch l {
		case model.LabelFake:
			fakeCount++
		case model.LabelReal:
			realCount++
		}
	}
	return model.NewLabelRatio(fakeCount, realCount).FakeRealRatio
}

// monthMatchers returns predicates for the current and previous month.
// Record months are read in the record's own zone.
func monthMatchers(now time.Time, mode DriftMode) (inCurrent, inPrevious func(time.Time) bool) {
	if mode == DriftYearMonth {
		cy, cm := now.Year(), now.Month()
		prev := time.Date(cy, cm, 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		py, pm := prev.Year(), prev.Month()
		inCurrent = func(t time.Time) bool { return t.Year() == cy && t.Month() == cm }
		inPrevious = func(t time.Time) bool { return t.Year() == py && t.Month() == pm }
		return inCurrent, inPrevious
	}

	cm := now.Month()
	pm := cm - 1
	if pm == 0 {
		pm = time.December
	}
	inCurrent = func(t time.Time) bool { return t.Month() == cm }
	inPrevious = func(t time.Time) bool { return t.Month() == pm }
	return inCurrent, inPrevious
}
