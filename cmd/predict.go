package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/veracity/internal/inference"
)

var predictCmd = &cobra.Command{
	Use:   "predict <text>",
	Short: "Classify one text and log the prediction",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "predict")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Predict(cmd.Context(), inference.Input{Text: strings.Join(args, " ")})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}
