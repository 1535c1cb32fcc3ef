package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <source.csv>",
	Short: "Print the column classification of a CSV file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := loadSource(args[0])
		if err != nil {
			return err
		}
		ingestor, err := application.Ingestor(ctx)
		if err != nil {
			return err
		}
		analysis, err := ingestor.Analyze(ctx, nil, src.Table)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	},
}
