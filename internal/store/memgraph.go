package store

import (
	"context"
	"fmt"
	"time"

	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/driver"
)

// MemgraphStore keeps the target table as graph nodes.
type MemgraphStore struct {
	Driver driver.GraphDriver
	Table  string

	now func() time.Time
}

// NewMemgraphStore builds indices and returns the store. Index failures are
// logged by the driver and not fatal.
func NewMemgraphStore(ctx context.Context, d driver.GraphDriver, table string) (*MemgraphStore, error) {
	if err := d.BuildIndices(ctx); err != nil {
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}
	return &MemgraphStore{Driver: d, Table: table, now: time.Now}, nil
}

func (s *MemgraphStore) Close(ctx context.Context) error {
	return s.Driver.Close(ctx)
}

func (s *MemgraphStore) Load(ctx context.Context, columns []string) (*model.Table, error) {
	params := map[string]interface{}{"table": s.Table}
	res, err := s.Driver.ExecuteQuery(ctx, driver.LoadTableColumnsQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", s.Table, err)
	}
	if len(res.Records) == 0 {
		return model.NewTable(columns), nil
	}
	raw, _ := res.Records[0].Get("columns")
	stored, err := toStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("bad columns on table %s: %w", s.Table, err)
	}

	res, err = s.Driver.ExecuteQuery(ctx, driver.LoadTableRowsQuery, params)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows of %s: %w", s.Table, err)
	}
	table := model.NewTable(stored)
	for _, rec := range res.Records {
		raw, _ := rec.Get("values")
		values, err := toStrings(raw)
		if err != nil {
			return nil, fmt.Errorf("bad row on table %s: %w", s.Table, err)
		}
		row := make(model.Row, len(stored))
		for i, c := range stored {
			if i < len(values) {
				row[c] = values[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return conform(table, columns)
}

func (s *MemgraphStore) Save(ctx context.Context, table *model.Table) error {
	rows := make([]interface{}, len(table.Rows))
	for i, r := range table.Rows {
		values := make([]interface{}, len(table.Columns))
		for j, c := range table.Columns {
			values[j] = r[c]
		}
		rows[i] = map[string]interface{}{"row_index": int64(i), "values": values}
	}
	columns := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		columns[i] = c
	}

	params := map[string]interface{}{"table": s.Table}
	if _, err := s.Driver.ExecuteQuery(ctx, driver.DeleteTableRowsQuery, params); err != nil {
		return fmt.Errorf("failed to clear rows of %s: %w", s.Table, err)
	}
	if _, err := s.Driver.ExecuteQuery(ctx, driver.SaveTableQuery, map[string]interface{}{
		"table":      s.Table,
		"columns":    columns,
		"updated_at": s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to save table %s: %w", s.Table, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.Driver.ExecuteQuery(ctx, driver.SaveTableRowsQuery, map[string]interface{}{
		"table": s.Table,
		"rows":  rows,
	}); err != nil {
		return fmt.Errorf("failed to save rows of %s: %w", s.Table, err)
	}
	return nil
}

func toStrings(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]string, len(list))
	for i, item := range list {
		switch x := item.(type) {
		case string:
			out[i] = x
		case nil:
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out, nil
}
