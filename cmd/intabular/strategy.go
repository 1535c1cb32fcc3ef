package main

import (
	"encoding/json"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/agenthands/intabular/internal/schema"
)

var (
	strategyOut  string
	strategyDump bool
)

var strategyCmd = &cobra.Command{
	Use:   "strategy <schema.yaml> <source.csv>",
	Short: "Build a column strategy without ingesting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ts, err := schema.LoadFile(args[0])
		if err != nil {
			return err
		}
		src, err := loadSource(args[1])
		if err != nil {
			return err
		}
		ingestor, err := application.Ingestor(ctx)
		if err != nil {
			return err
		}
		strat, err := ingestor.BuildStrategy(ctx, ts, src.Table)
		if err != nil {
			return err
		}
		if strategyDump {
			spew.Fdump(cmd.ErrOrStderr(), strat)
		}
		if strategyOut != "" {
			return writeJSON(strategyOut, strat)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(strat)
	},
}

func init() {
	strategyCmd.Flags().StringVarP(&strategyOut, "output", "o", "", "write the strategy JSON to this file")
	strategyCmd.Flags().BoolVar(&strategyDump, "dump", false, "dump the strategy structure to stderr")
}
