package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/agenthands/intabular/internal/core/model"
)

// dialect covers the differences between the database/sql backends.
type dialect struct {
	name        string
	quote       func(string) string
	placeholder func(n int) string
	tableExists string
}

var sqliteDialect = dialect{
	name: "sqlite",
	quote: func(name string) string {
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	},
	placeholder: func(int) string { return "?" },
	tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
}

var mysqlDialect = dialect{
	name: "mysql",
	quote: func(name string) string {
		return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
	},
	placeholder: func(int) string { return "?" },
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
}

// SQLStore keeps the target table in a relational table with one TEXT
// column per target column plus a reserved row index column for ordering.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	table   string
}

func OpenSQLite(dsn, table string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLStore{db: db, dialect: sqliteDialect, table: table}, nil
}

func OpenMySQL(dsn, table string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	return &SQLStore{db: db, dialect: mysqlDialect, table: table}, nil
}

func (s *SQLStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLStore) exists(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.tableExists, s.table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", s.table, err)
	}
	return n > 0, nil
}

// columns returns the stored data columns, without the row index.
func (s *SQLStore) columns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", s.dialect.quote(s.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", s.table, err)
	}
	defer rows.Close()
	all, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(all))
	for _, c := range all {
		if c != rowIndexColumn {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

func (s *SQLStore) Load(ctx context.Context, columns []string) (*model.Table, error) {
	if err := checkReserved(columns); err != nil {
		return nil, err
	}
	ok, err := s.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewTable(columns), nil
	}

	stored, err := s.columns(ctx)
	if err != nil {
		return nil, err
	}
	quoted := make([]string, len(stored))
	for i, c := range stored {
		quoted[i] = s.dialect.quote(c)
	}
	if len(quoted) == 0 {
		return model.NewTable(columns), nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "), s.dialect.quote(s.table), s.dialect.quote(rowIndexColumn))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.table, err)
	}
	defer rows.Close()

	table := model.NewTable(stored)
	vals := make([]sql.NullString, len(stored))
	ptrs := make([]any, len(stored))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(model.Row, len(stored))
		for i, c := range stored {
			row[c] = vals[i].String
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conform(table, columns)
}

// Save replaces the stored rows with table. DDL runs before the
// transaction since MySQL commits implicitly on schema changes.
func (s *SQLStore) Save(ctx context.Context, table *model.Table) error {
	if err := checkReserved(table.Columns); err != nil {
		return err
	}
	if err := s.ensureTable(ctx, table.Columns); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.dialect.quote(s.table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.table, err)
	}

	cols := append([]string{rowIndexColumn}, table.Columns...)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.dialect.quote(c)
		marks[i] = s.dialect.placeholder(i + 1)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.quote(s.table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i, row := range table.Rows {
		args[0] = i
		for j, c := range table.Columns {
			args[j+1] = row[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) ensureTable(ctx context.Context, columns []string) error {
	defs := []string{s.dialect.quote(rowIndexColumn) + " INTEGER PRIMARY KEY"}
	for _, c := range columns {
		defs = append(defs, s.dialect.quote(c)+" TEXT")
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.dialect.quote(s.table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}

	existing, err := s.columns(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range columns {
		if have[c] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", s.dialect.quote(s.table), s.dialect.quote(c))
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c, err)
		}
	}
	return nil
}
