package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/veracity/internal/export"
)

var casesOut string

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Work with logged critical cases",
}

var casesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export critical cases to an XLSX workbook for review",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := export.CriticalCasesXLSX(env.Store.CriticalCases(cmd.Context()), casesOut)
		if err != nil {
			return err
		}

		zap.L().Info("critical cases exported", zap.String("path", casesOut), zap.Int("rows", n))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d critical cases to %s\n", n, casesOut)
		return err
	},
}

var casesIn string

var casesReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Compare reviewer labels in an exported workbook with the logged predictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer env.Close()

		labels, err := export.ReadReviewedLabels(casesIn)
		if err != nil {
			return err
		}

		var reviewed, agreed int
		for c, err := range env.Store.CriticalCases(cmd.Context()) {
			if err != nil {
				return err
			}
			label, ok := labels[c.Text]
			if !ok {
				continue
			}
			reviewed++
			if label == c.Prediction {
				agreed++
			}
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "reviewed %d critical cases: %d agreed, %d overturned\n",
			reviewed, agreed, reviewed-agreed)
		return err
	},
}

func init() {
	casesReviewCmd.Flags().StringVar(&casesIn, "in", "critical_cases.xlsx", "reviewed workbook path")
	casesCmd.AddCommand(casesReviewCmd)
	casesExportCmd.Flags().StringVar(&casesOut, "out", "critical_cases.xlsx", "output workbook path")
	casesCmd.AddCommand(casesExportCmd)
	rootCmd.AddCommand(casesCmd)
}
