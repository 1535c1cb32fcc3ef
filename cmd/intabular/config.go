package main

import (
	"github.com/spf13/cobra"

	"github.com/agenthands/intabular/internal/schema"
)

var schemaOut string

var configCmd = &cobra.Command{
	Use:   "config <table.csv> <purpose>",
	Short: "Infer a target schema YAML from an existing table's header",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := loadSource(args[0])
		if err != nil {
			return err
		}
		ts := schema.Infer(src.Table.Columns, args[1])
		ts.TargetPath = args[0]

		if schemaOut != "" {
			if err := schema.WriteFile(ts, schemaOut); err != nil {
				return err
			}
			application.Logger.Info("schema written", "path", schemaOut, "columns", len(ts.Columns))
			return nil
		}
		data, err := schema.Marshal(ts)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().StringVarP(&schemaOut, "output", "o", "", "write the schema to this file instead of stdout")
}
