package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agenthands/intabular/internal/core/model"
)

const pgColumnsQuery = `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

// PostgresStore is the pgx variant of SQLStore. Rows are written with COPY.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// columns returns stored data columns; none means the table is absent.
func (s *PostgresStore) columns(ctx context.Context) ([]string, bool, error) {
	rows, err := s.pool.Query(ctx, pgColumnsQuery, s.table)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read columns of %s: %w", s.table, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, false, fmt.Errorf("failed to read columns of %s: %w", s.table, err)
	}
	cols := make([]string, 0, len(names))
	for _, n := range names {
		if n != rowIndexColumn {
			cols = append(cols, n)
		}
	}
	return cols, len(names) > 0, nil
}

func (s *PostgresStore) Load(ctx context.Context, columns []string) (*model.Table, error) {
	if err := checkReserved(columns); err != nil {
		return nil, err
	}
	stored, ok, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	if !ok || len(stored) == 0 {
		return model.NewTable(columns), nil
	}

	quoted := make([]string, len(stored))
	for i, c := range stored {
		quoted[i] = pgIdent(c)
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "), pgIdent(s.table), pgIdent(rowIndexColumn)))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.table, err)
	}
	defer rows.Close()

	table := model.NewTable(stored)
	for rows.Next() {
		vals := make([]*string, len(stored))
		ptrs := make([]any, len(stored))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(model.Row, len(stored))
		for i, c := range stored {
			if vals[i] != nil {
				row[c] = *vals[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conform(table, columns)
}

func (s *PostgresStore) Save(ctx context.Context, table *model.Table) error {
	if err := checkReserved(table.Columns); err != nil {
		return err
	}
	defs := []string{pgIdent(rowIndexColumn) + " INTEGER PRIMARY KEY"}
	for _, c := range table.Columns {
		defs = append(defs, pgIdent(c)+" TEXT")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgIdent(s.table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	for _, c := range table.Columns {
		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", pgIdent(s.table), pgIdent(c))); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c, err)
		}
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+pgIdent(s.table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.table, err)
	}

	cols := append([]string{rowIndexColumn}, table.Columns...)
	data := make([][]any, len(table.Rows))
	for i, row := range table.Rows {
		rec := make([]any, len(cols))
		rec[0] = int32(i)
		for j, c := range table.Columns {
			rec[j+1] = row[c]
		}
		data[i] = rec
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{s.table}, cols, pgx.CopyFromRows(data)); err != nil {
		return fmt.Errorf("failed to copy rows into %s: %w", s.table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", s.table, err)
	}
	return nil
}
