package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/source"
)

// CSVStore keeps the target table in a CSV file. Saves go through a
// temporary file and a rename.
type CSVStore struct {
	Path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{Path: path}
}

func (s *CSVStore) Load(ctx context.Context, columns []string) (*model.Table, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return model.NewTable(columns), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read target file %s: %w", s.Path, err)
	}

	table, err := ParseCSV(data, columns)
	if err != nil {
		return nil, fmt.Errorf("failed to read target file %s: %w", s.Path, err)
	}
	return table, nil
}

func (s *CSVStore) Save(ctx context.Context, table *model.Table) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, table); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write target file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace target file %s: %w", s.Path, err)
	}
	return nil
}

func (s *CSVStore) Close(ctx context.Context) error {
	return nil
}

// WriteCSV writes a table with its header.
func WriteCSV(w io.Writer, table *model.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	rec := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, c := range table.Columns {
			rec[i] = row[c]
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCSV reads a stored target table and conforms it to columns. Header
// names are taken verbatim. Empty input yields an empty table.
func ParseCSV(data []byte, columns []string) (*model.Table, error) {
	decoded, _, err := source.Decode(data)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return model.NewTable(columns), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read target header: %w", err)
	}

	stored := model.NewTable(header)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(model.Row, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		stored.Rows = append(stored.Rows, row)
	}
	return conform(stored, columns)
}
