// Package core wires the ingestion pipeline: analysis, strategy and the
// per-row merge loop.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/analysis"
	"github.com/agenthands/intabular/internal/core/match"
	"github.com/agenthands/intabular/internal/core/merge"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/strategy"
	"github.com/agenthands/intabular/internal/core/transform"
	"github.com/agenthands/intabular/internal/llm"
)

type Ingestor struct {
	Analyzer *analysis.Analyzer
	Builder  *strategy.Builder
	Executor *transform.Executor
	// Threshold applies when the schema sets none.
	Threshold float64
	Logger    *slog.Logger

	NewRunID func() string
	Now      func() time.Time
}

func NewIngestor(completer llm.Completer, cfg *config.Config) *Ingestor {
	return &Ingestor{
		Analyzer:  analysis.NewAnalyzer(completer, cfg.Prompts, cfg.Analysis, cfg.Concurrency),
		Builder:   strategy.NewBuilder(completer, cfg.Prompts, cfg.Concurrency),
		Executor:  transform.NewExecutor(completer, cfg.Prompts, cfg.Concurrency),
		Threshold: cfg.Matching.Threshold,
		Logger:    slog.Default(),
		NewRunID:  func() string { return uuid.New().String() },
		Now:       time.Now,
	}
}

// SetLogger points every stage at the same logger.
func (i *Ingestor) SetLogger(l *slog.Logger) {
	i.Logger = l
	i.Analyzer.Logger = l
	i.Builder.Logger = l
	i.Executor.Logger = l
}

// Run analyzes the source, builds a strategy for it and ingests it into
// target. The strategy is returned alongside the report so callers can save
// it for later runs.
func (i *Ingestor) Run(ctx context.Context, schema *model.TargetSchema, source, target *model.Table) (*model.Report, *model.Strategy, error) {
	s, err := i.BuildStrategy(ctx, schema, source)
	if err != nil {
		return nil, nil, err
	}
	report, err := i.Ingest(ctx, schema, s, source, target)
	return report, s, err
}

// Analyze runs the column classifier, honoring the schema's sample size.
func (i *Ingestor) Analyze(ctx context.Context, schema *model.TargetSchema, source *model.Table) (*model.TableAnalysis, error) {
	a := i.Analyzer
	if schema != nil && schema.SampleRows > 0 {
		copied := *a
		copied.SampleRows = schema.SampleRows
		a = &copied
	}
	return a.Analyze(ctx, source)
}

func (i *Ingestor) BuildStrategy(ctx context.Context, schema *model.TargetSchema, source *model.Table) (*model.Strategy, error) {
	an, err := i.Analyze(ctx, schema, source)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze source: %w", err)
	}
	s, err := i.Builder.Build(ctx, schema, an)
	if err != nil {
		return nil, fmt.Errorf("failed to build strategy: %w", err)
	}
	return s, nil
}

// Ingest feeds every source row through the merger, in order, against
// target. target is modified in place. Cancellation is checked between rows;
// a cancelled run returns the partial report with the context error.
func (i *Ingestor) Ingest(ctx context.Context, schema *model.TargetSchema, s *model.Strategy, source, target *model.Table) (*model.Report, error) {
	if err := strategy.CheckStrategy(s, schema, source.Columns); err != nil {
		return nil, err
	}

	threshold := i.Threshold
	if schema.MatchThreshold > 0 {
		threshold = schema.MatchThreshold
	}
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}

	report := &model.Report{
		RunID:      i.runID(),
		StartedAt:  i.now(),
		SourceRows: source.Len(),
	}
	logger := i.logger().With("run_id", report.RunID)
	if len(match.Weights(schema)) == 0 {
		logger.Warn("schema has no weighted entity columns, every row will be appended")
	}
	logger.Info("ingesting", "source_rows", source.Len(), "target_rows", target.Len(), "threshold", threshold)

	arena := merge.NewArena(schema, s, source.Columns, target, i.Executor, threshold)
	arena.Logger = logger

	var runErr error
	for idx, row := range source.Rows {
		if err := ctx.Err(); err != nil {
			runErr = err
			logger.Warn("ingestion cancelled", "processed", idx, "error", err)
			break
		}
		report.Record(i.ingestRow(ctx, arena, idx, row))
	}

	report.TargetRows = arena.Table().Len()
	report.FinishedAt = i.now()
	logger.Info("ingestion finished",
		"merged", report.Merged, "appended", report.Appended,
		"field_errors", len(report.FieldErrors), "target_rows", report.TargetRows)
	return report, runErr
}

func (i *Ingestor) ingestRow(ctx context.Context, arena *merge.Arena, src int, row model.Row) (model.RowOutcome, []model.FieldError) {
	values, errs := arena.EntityValues(ctx, src, row)
	res := arena.Match(values)
	if res.Matched {
		errs = append(errs, arena.MergeInto(ctx, res.Index, src, row, values)...)
		return model.RowOutcome{SourceRow: src, Action: model.ActionMerged, TargetRow: res.Index, Score: res.Score}, errs
	}
	idx, more := arena.Append(ctx, src, row, values)
	return model.RowOutcome{SourceRow: src, Action: model.ActionAppended, TargetRow: idx, Score: res.Score}, append(errs, more...)
}

func (i *Ingestor) runID() string {
	if i.NewRunID == nil {
		return uuid.New().String()
	}
	return i.NewRunID()
}

func (i *Ingestor) now() time.Time {
	if i.Now == nil {
		return time.Now().UTC()
	}
	return i.Now().UTC()
}

func (i *Ingestor) logger() *slog.Logger {
	if i.Logger == nil {
		return slog.Default()
	}
	return i.Logger
}
