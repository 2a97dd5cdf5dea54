package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/veracity/internal/model"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the monthly report from the prediction log",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer env.Close()

		r, ok, err := env.Aggregator.Generate(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), r, ok, reportJSON)
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted report for the current month",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer env.Close()

		r, ok, err := env.Aggregator.Current(cmd.Context())
		if err != nil {
			return err
		}
		return printReport(cmd.OutOrStdout(), r, ok, reportJSON)
	},
}

func printReport(w io.Writer, r *model.Report, ok, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		if !ok {
			return enc.Encode(model.NoDataResponse{Status: model.ReportStatusNoData})
		}
		return enc.Encode(r)
	}

	if !ok {
		_, err := fmt.Fprintln(w, "No predictions logged yet.")
		return err
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "Report generated %s\n", r.Timestamp.Format(time.RFC3339))
	p.Fprintf(&b, "  predictions:        %d\n", r.ServerHealth.TotalPredictions)
	p.Fprintf(&b, "  fake / real:        %d / %d (ratio %.2f)\n", r.FakeRealRatio.Fake, r.FakeRealRatio.Real, r.FakeRealRatio.FakeRealRatio)
	p.Fprintf(&b, "  avg confidence:     %.3f\n", r.AverageConfidence)
	p.Fprintf(&b, "  avg latency (s):    total %.3f, inference %.3f, server %.3f\n",
		r.AverageLatencyTotal, r.AverageLatencyInference, r.AverageLatencyServer)
	p.Fprintf(&b, "  model drift:        %+.3f\n", r.ModelDrift)
	p.Fprintf(&b, "  low confidence:     %d\n", r.ErrorAnalysis.LowConfidenceCases)
	p.Fprintf(&b, "  high latency:       %d\n", r.ErrorAnalysis.HighLatencyCases)
	if len(r.Anomalies) == 0 {
		b.WriteString("  anomalies:          none\n")
	}
	for _, a := range r.Anomalies {
		p.Fprintf(&b, "  anomaly:            %s\n", a)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func init() {
	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}
