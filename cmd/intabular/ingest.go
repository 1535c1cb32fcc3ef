package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthands/intabular/internal/core"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/schema"
	"github.com/agenthands/intabular/internal/source"
	"github.com/agenthands/intabular/internal/store"
)

var (
	strategyPath string
	reportPath   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <schema.yaml> <source.csv> [target]",
	Short: "Ingest a CSV file into the target table",
	Long: `Ingest analyzes the source, builds a column strategy and merges every
source row into the target. The target is a CSV path for the csv store and a
table name for database stores; it defaults to the schema's target_file_path.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&strategyPath, "strategy", "", "reuse the strategy in this file, or save the built one there")
	ingestCmd.Flags().StringVar(&reportPath, "report", "", "write the run report as JSON to this file")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := application.Logger

	ts, err := schema.LoadFile(args[0])
	if err != nil {
		return err
	}
	src, err := loadSource(args[1])
	if err != nil {
		return err
	}

	target := ts.TargetPath
	if len(args) == 3 {
		target = args[2]
	}
	st, err := store.Open(ctx, application.Config.Store, target)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	table, err := st.Load(ctx, ts.ColumnNames())
	if err != nil {
		return err
	}

	ingestor, err := application.Ingestor(ctx)
	if err != nil {
		return err
	}

	strat, err := loadStrategy(strategyPath)
	if err != nil {
		return err
	}
	if strat == nil {
		strat, err = ingestor.BuildStrategy(ctx, ts, src.Table)
		if err != nil {
			return err
		}
		if strategyPath != "" {
			if err := writeJSON(strategyPath, strat); err != nil {
				return err
			}
			logger.Info("strategy saved", "path", strategyPath)
		}
	}

	report, runErr := ingestInto(ctx, ingestor, st, ts, strat, src.Table, table)
	if report == nil {
		return runErr
	}

	if reportPath != "" {
		if err := writeJSON(reportPath, report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d source rows: %d merged, %d appended, %d field errors; target has %d rows\n",
		report.SourceRows, report.Merged, report.Appended, len(report.FieldErrors), report.TargetRows)
	return runErr
}

// ingestInto runs the ingest and saves the target. The save does not inherit
// ctx's cancellation, so an interrupted run keeps the rows it already merged.
func ingestInto(ctx context.Context, ingestor *core.Ingestor, st store.TableStore, ts *model.TargetSchema, strat *model.Strategy, src, table *model.Table) (*model.Report, error) {
	report, runErr := ingestor.Ingest(ctx, ts, strat, src, table)
	if report == nil {
		return nil, runErr
	}
	if err := store.SaveDetached(ctx, st, table); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("failed to save target: %w", err))
	}
	return report, runErr
}

func loadSource(path string) (*source.Result, error) {
	src, err := source.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, w := range src.Warnings {
		application.Logger.Warn("source row", "row", w.Row, "warning", w.Message)
	}
	application.Logger.Debug("source loaded", "rows", src.Table.Len(), "columns", src.Table.Columns, "encoding", src.Encoding)
	return src, nil
}

// loadStrategy returns nil when path is empty or does not exist yet.
func loadStrategy(path string) (*model.Strategy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy: %w", err)
	}
	var s model.Strategy
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse strategy %s: %w", path, err)
	}
	return &s, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
