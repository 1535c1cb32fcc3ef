package model

// Row maps column name to value. Missing keys and empty strings both mean empty.
type Row map[string]string

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is a row-oriented table with an ordered header.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable returns an empty table with the given header.
func NewTable(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Get returns the value at (row, column), or "" when absent.
func (t *Table) Get(row int, column string) string {
	return t.Rows[row][column]
}

// Set writes a value at (row, column).
func (t *Table) Set(row int, column, value string) {
	t.Rows[row][column] = value
}

// Append adds a row with every header column present and returns its index.
func (t *Table) Append(values Row) int {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		row[c] = values[c]
	}
	t.Rows = append(t.Rows, row)
	return len(t.Rows) - 1
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}
