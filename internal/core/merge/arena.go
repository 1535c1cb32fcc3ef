// Package merge writes source rows into the target table.
package merge

import (
	"context"
	"log/slog"

	"github.com/agenthands/intabular/internal/core/match"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/transform"
)

// Arena owns the target table for one run. Rows must be fed one at a time;
// every write is visible to the next Match.
type Arena struct {
	Schema   *model.TargetSchema
	Strategy *model.Strategy
	Fields   []string
	Exec     *transform.Executor
	Logger   *slog.Logger

	table   *model.Table
	matcher *match.Matcher
}

// NewArena takes ownership of table. Columns of the schema missing from the
// table are added empty.
func NewArena(schema *model.TargetSchema, strategy *model.Strategy, fields []string, table *model.Table, exec *transform.Executor, threshold float64) *Arena {
	for _, c := range schema.ColumnNames() {
		if !table.HasColumn(c) {
			table.Columns = append(table.Columns, c)
		}
	}
	m := match.NewMatcher(schema, threshold)
	m.Rebuild(table)
	return &Arena{
		Schema:   schema,
		Strategy: strategy,
		Fields:   fields,
		Exec:     exec,
		Logger:   slog.Default(),
		table:    table,
		matcher:  m,
	}
}

func (a *Arena) Table() *model.Table {
	return a.table
}

// EntityValues transforms the entity columns of a source row. Columns whose
// rule yields nothing or fails are left out of the result.
func (a *Arena) EntityValues(ctx context.Context, src int, row model.Row) (map[string]string, []model.FieldError) {
	values := make(map[string]string)
	var errs []model.FieldError
	for _, col := range a.Schema.EntityColumns() {
		m := a.Strategy.Entity[col.Name]
		v, ok, err := a.Exec.Apply(ctx, a.request(col, m, row, false, ""))
		if err != nil {
			errs = append(errs, a.fieldError(src, col.Name, model.PhaseEntity, m, err))
			continue
		}
		if ok {
			values[col.Name] = v
		}
	}
	return values, errs
}

func (a *Arena) Match(values map[string]string) match.Result {
	return a.matcher.Match(values)
}

// MergeInto fills empty entity cells of the target row and merges every
// descriptive column with its current value. A merge that fails or yields
// nothing keeps the current value.
func (a *Arena) MergeInto(ctx context.Context, target, src int, row model.Row, values map[string]string) []model.FieldError {
	var errs []model.FieldError
	for _, col := range a.Schema.EntityColumns() {
		v := values[col.Name]
		if v == "" || a.table.Get(target, col.Name) != "" {
			continue
		}
		a.table.Set(target, col.Name, v)
		a.matcher.Observe(target, col.Name, "", v)
	}

	for _, col := range a.Schema.DescriptiveColumns() {
		m := a.Strategy.Merge[col.Name]
		current := a.table.Get(target, col.Name)
		v, ok, err := a.Exec.Apply(ctx, a.request(col, m, row, true, current))
		if err != nil {
			errs = append(errs, a.fieldError(src, col.Name, model.PhaseMerge, m, err))
			continue
		}
		if ok && v != current {
			a.table.Set(target, col.Name, v)
		}
	}
	return errs
}

// Append adds a new target row built from the entity values and the
// descriptive rules evaluated with an empty current value.
func (a *Arena) Append(ctx context.Context, src int, row model.Row, values map[string]string) (int, []model.FieldError) {
	out := make(model.Row, len(a.table.Columns))
	for _, col := range a.Schema.EntityColumns() {
		out[col.Name] = values[col.Name]
	}

	var errs []model.FieldError
	for _, col := range a.Schema.DescriptiveColumns() {
		m := a.Strategy.Merge[col.Name]
		v, ok, err := a.Exec.Apply(ctx, a.request(col, m, row, true, ""))
		if err != nil {
			errs = append(errs, a.fieldError(src, col.Name, model.PhaseAppend, m, err))
			continue
		}
		if ok {
			out[col.Name] = v
		}
	}

	idx := a.table.Append(out)
	a.matcher.ObserveRow(idx, a.table.Rows[idx])
	return idx, errs
}

func (a *Arena) request(col model.Column, m model.ColumnMapping, row model.Row, merge bool, current string) transform.Request {
	return transform.Request{
		Purpose: a.Schema.Purpose,
		Column:  col,
		Mapping: m,
		Fields:  a.Fields,
		Row:     row,
		Merge:   merge,
		Current: current,
	}
}

func (a *Arena) fieldError(src int, column string, phase model.Phase, m model.ColumnMapping, err error) model.FieldError {
	fe := model.FieldError{Row: src, Column: column, Phase: phase, Rule: m.TransformationRule, Err: err}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("field transformation failed",
		"column", column, "row", src, "rule", m.TransformationRule, "phase", phase, "error", err)
	return fe
}
