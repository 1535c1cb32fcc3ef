// Package store persists the target table.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/driver"
)

// ErrColumnMismatch means the stored table has columns the schema lacks.
var ErrColumnMismatch = errors.New("target table columns do not match schema")

// DefaultTable names the database table when none is configured.
const DefaultTable = "target_rows"

// ErrReservedColumn means a schema column uses the name database stores keep
// for row order.
var ErrReservedColumn = errors.New("column name is reserved")

// rowIndexColumn orders rows in database stores. It is namespaced so that
// ordinary schema columns such as row_index stay available.
const rowIndexColumn = "_intabular_row_index"

func checkReserved(columns []string) error {
	for _, c := range columns {
		if strings.EqualFold(c, rowIndexColumn) {
			return fmt.Errorf("%w: %q", ErrReservedColumn, c)
		}
	}
	return nil
}

// TableStore loads and saves a whole target table. Load of a table that does
// not exist yet returns an empty table with the requested columns.
type TableStore interface {
	Load(ctx context.Context, columns []string) (*model.Table, error)
	Save(ctx context.Context, table *model.Table) error
	Close(ctx context.Context) error
}

// SaveTimeout bounds a detached save.
const SaveTimeout = 30 * time.Second

// SaveDetached saves table even when ctx is already cancelled, so the rows
// ingested before an interrupt still reach the store.
func SaveDetached(ctx context.Context, s TableStore, table *model.Table) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SaveTimeout)
	defer cancel()
	return s.Save(ctx, table)
}

// Open returns the store selected by cfg.Driver. target is the file path for
// the csv driver and the table name for the others; empty falls back to
// cfg.Table.
func Open(ctx context.Context, cfg config.StoreConfig, target string) (TableStore, error) {
	if target == "" {
		target = cfg.Table
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "csv":
		if target == "" {
			return nil, fmt.Errorf("csv store needs a target file path")
		}
		return NewCSVStore(target), nil
	}

	if target == "" {
		target = DefaultTable
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return OpenSQLite(cfg.DSN, target)
	case "mysql":
		return OpenMySQL(cfg.DSN, target)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, target)
	case "memgraph":
		d, err := driver.NewMemgraphDriver(ctx, cfg.DSN, cfg.User, cfg.Password)
		if err != nil {
			return nil, err
		}
		return NewMemgraphStore(ctx, d, target)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// conform returns a table with exactly the schema columns, in schema order.
// Columns of the stored table that are not in the schema are an error;
// schema columns missing from it are added empty.
func conform(stored *model.Table, columns []string) (*model.Table, error) {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
	var extra []string
	for _, c := range stored.Columns {
		if !want[c] {
			extra = append(extra, c)
		}
	}
	if len(extra) > 0 {
		return nil, fmt.Errorf("%w: unknown columns %s", ErrColumnMismatch, strings.Join(extra, ", "))
	}

	out := model.NewTable(columns)
	for _, r := range stored.Rows {
		out.Append(r)
	}
	return out, nil
}
