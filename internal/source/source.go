// Package source reads incoming CSV files into tables with normalized headers.
package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/agenthands/intabular/internal/core/model"
)

var ErrNoHeader = errors.New("empty file: no header row found")

// Warning is a non-fatal issue found while reading a file.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result is a parsed source file.
type Result struct {
	Table *model.Table
	// Headers holds the raw header cells, index-aligned with Table.Columns.
	Headers  []string
	Encoding string
	Warnings []Warning
}

// LoadFile reads and parses a CSV file.
func LoadFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes CSV bytes. Rows with too few cells are padded, rows with too
// many are truncated, and unparsable rows are skipped; each case adds a
// warning. Row numbers in warnings are 1-based file lines of records, the
// header being row 1.
func Parse(data []byte) (*Result, error) {
	decoded, enc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("encoding detection failed: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := NormalizeHeaders(headers)
	res := &Result{
		Table:    model.NewTable(columns),
		Headers:  headers,
		Encoding: enc,
	}

	rowNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			res.warn(rowNum, "parse error: %v", err)
			continue
		}
		if isBlank(record) {
			continue
		}

		switch {
		case len(record) < len(columns):
			res.warn(rowNum, "row has %d columns, expected %d; padding with empty values", len(record), len(columns))
		case len(record) > len(columns):
			res.warn(rowNum, "row has %d columns, expected %d; truncating extra columns", len(record), len(columns))
		}

		row := make(model.Row, len(columns))
		for i, c := range columns {
			if i < len(record) {
				row[c] = record[i]
			} else {
				row[c] = ""
			}
		}
		res.Table.Rows = append(res.Table.Rows, row)
	}
	return res, nil
}

func (r *Result) warn(row int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Row: row, Message: fmt.Sprintf(format, args...)})
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NormalizeHeader lowercases a header cell and collapses every run of
// characters other than letters and digits into a single underscore.
func NormalizeHeader(h string) string {
	var sb strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pending = false
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		pending = true
	}
	return sb.String()
}

// NormalizeHeaders normalizes every header cell. Empty results become
// column_<n> (1-based) and duplicates get _2, _3 suffixes.
func NormalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		name := NormalizeHeader(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			candidate := fmt.Sprintf("%s_%d", name, n+1)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s_%d", name, n+1)
			}
			seen[name] = n + 1
			name = candidate
		}
		seen[name]++
		out[i] = name
	}
	return out
}
