// Package analysis describes the columns of an incoming table for the
// strategy builder.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/common"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/llm"
)

var semanticTypes = []string{"email", "name", "company", "phone", "address", "identifier", "text", "number", "date", "url", "social", "title", "location", "other"}

// semantic types treated as identifiers
var identifierTypes = map[string]bool{"email": true, "phone": true, "identifier": true, "url": true, "social": true}

var columnSchema = llm.ResponseSchema{
	Name: "column_analysis",
	Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "semantic_type": {"type": "string", "enum": ["` + strings.Join(semanticTypes, `","`) + `"]},
    "description": {"type": "string"}
  },
  "required": ["semantic_type", "description"],
  "additionalProperties": false
}`),
}

var tableSchema = llm.ResponseSchema{
	Name: "table_analysis",
	Schema: json.RawMessage(`{
  "type": "object",
  "properties": {"table_purpose": {"type": "string"}},
  "required": ["table_purpose"],
  "additionalProperties": false
}`),
}

type columnResult struct {
	SemanticType string `json:"semantic_type"`
	Description  string `json:"description"`
}

type tableResult struct {
	TablePurpose string `json:"table_purpose"`
}

type Analyzer struct {
	// LLM may be nil; descriptions then come from statistics only.
	LLM        llm.Completer
	Prompts    config.PromptsConfig
	SampleRows int
	UseLLM     bool
	Options    common.ParallelOptions
	Logger     *slog.Logger
}

func NewAnalyzer(completer llm.Completer, prompts config.PromptsConfig, ac config.AnalysisConfig, cc config.ConcurrencyConfig) *Analyzer {
	if prompts.ColumnAnalysis == "" {
		prompts.ColumnAnalysis = DefaultColumnPrompt
	}
	if prompts.TableSummary == "" {
		prompts.TableSummary = DefaultTableSummaryPrompt
	}
	return &Analyzer{
		LLM:        completer,
		Prompts:    prompts,
		SampleRows: ac.SampleRows,
		UseLLM:     ac.UseLLM && completer != nil,
		Options: common.ParallelOptions{
			Workers: cc.StrategyWorkers,
			Timeout: cc.LLMTimeout(),
			Retries: cc.LLMRetries,
		},
		Logger: slog.Default(),
	}
}

// Analyze computes per-column statistics and, when enabled, asks the LLM to
// describe each column and the table. LLM failures fall back to the
// statistics-based description and never fail the analysis.
func (a *Analyzer) Analyze(ctx context.Context, table *model.Table) (*model.TableAnalysis, error) {
	out := &model.TableAnalysis{RowCount: table.Len()}
	for _, col := range table.Columns {
		out.Columns = append(out.Columns, a.stats(table, col))
	}
	if !a.UseLLM || a.LLM == nil {
		return out, nil
	}

	// describe retries and times out each call itself and never fails
	opts := a.Options
	opts.Retries, opts.Timeout = 0, 0
	described, err := common.ParallelMap(ctx, out.Columns, opts, func(ctx context.Context, c model.ColumnAnalysis) (model.ColumnAnalysis, error) {
		return a.describe(ctx, c, out.RowCount), nil
	})
	if err != nil {
		return nil, err
	}
	out.Columns = described

	purpose, err := a.summarize(ctx, out)
	if err != nil {
		a.logger().Warn("table summary failed", "error", err)
	} else {
		out.Purpose = purpose
	}
	return out, nil
}

func (a *Analyzer) stats(table *model.Table, name string) model.ColumnAnalysis {
	sampleRows := a.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	var (
		nonEmpty   int
		spaced     int
		distinct   = make(map[string]struct{})
		samples    []string
		sampleSeen = make(map[string]bool)
	)
	for _, row := range table.Rows {
		v := strings.TrimSpace(row[name])
		if v == "" {
			continue
		}
		nonEmpty++
		distinct[v] = struct{}{}
		if strings.ContainsAny(v, " \t") {
			spaced++
		}
		if len(samples) < sampleRows && !sampleSeen[v] {
			sampleSeen[v] = true
			samples = append(samples, v)
		}
	}

	c := model.ColumnAnalysis{
		Name:     name,
		Type:     model.ColumnText,
		Samples:  samples,
		Distinct: len(distinct),
	}
	if table.Len() > 0 {
		c.Completeness = float64(nonEmpty) / float64(table.Len())
	}
	if nonEmpty > 0 && len(distinct) == nonEmpty && spaced == 0 {
		c.Type = model.ColumnIdentifier
	}
	c.Description = fallbackDescription(c)
	return c
}

func fallbackDescription(c model.ColumnAnalysis) string {
	if len(c.Samples) == 0 {
		return fmt.Sprintf("%s column %q with no values", c.Type, c.Name)
	}
	return fmt.Sprintf("%s column %q, %.0f%% filled, %d distinct values, e.g. %s",
		c.Type, c.Name, c.Completeness*100, c.Distinct, strings.Join(quoteAll(c.Samples), ", "))
}

func (a *Analyzer) describe(ctx context.Context, c model.ColumnAnalysis, rows int) model.ColumnAnalysis {
	samples, _ := json.Marshal(c.Samples)
	prompt := fmt.Sprintf(a.Prompts.ColumnAnalysis, c.Name, samples,
		strconv.FormatFloat(c.Completeness*100, 'f', 1, 64), c.Distinct, rows)

	res, err := common.Retry(ctx, a.Options.Retries, a.Options.Backoff, func(ctx context.Context) (columnResult, error) {
		resp, err := a.complete(ctx, prompt, columnSchema)
		if err != nil {
			return columnResult{}, fmt.Errorf("failed to generate column analysis: %w", err)
		}
		return common.ParseJSON[columnResult](resp)
	})
	if err != nil {
		a.logger().Warn("column analysis failed, using statistics", "column", c.Name, "error", err)
		return c
	}

	if res.Description != "" {
		c.Description = res.Description
	}
	if identifierTypes[res.SemanticType] {
		c.Type = model.ColumnIdentifier
	} else if res.SemanticType != "" {
		c.Type = model.ColumnText
	}
	return c
}

func (a *Analyzer) summarize(ctx context.Context, analysis *model.TableAnalysis) (string, error) {
	type summary struct {
		Type        model.ColumnType `json:"type"`
		Description string           `json:"description"`
	}
	cols := make(map[string]summary, len(analysis.Columns))
	for _, c := range analysis.Columns {
		cols[c.Name] = summary{Type: c.Type, Description: c.Description}
	}
	data, err := json.MarshalIndent(cols, "", "  ")
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(a.Prompts.TableSummary, analysis.RowCount, data)

	return common.Retry(ctx, a.Options.Retries, a.Options.Backoff, func(ctx context.Context) (string, error) {
		resp, err := a.complete(ctx, prompt, tableSchema)
		if err != nil {
			return "", fmt.Errorf("failed to generate table summary: %w", err)
		}
		res, err := common.ParseJSON[tableResult](resp)
		if err != nil {
			return "", err
		}
		return res.TablePurpose, nil
	})
}

func (a *Analyzer) complete(ctx context.Context, prompt string, schema llm.ResponseSchema) (string, error) {
	if a.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Options.Timeout)
		defer cancel()
	}
	return a.LLM.Complete(ctx, prompt, schema)
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.Quote(common.Truncate(v, 40))
	}
	return out
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
