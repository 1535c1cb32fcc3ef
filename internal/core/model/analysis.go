package model

// ColumnType is the classifier's coarse category for a source column.
type ColumnType string

const (
	ColumnIdentifier ColumnType = "identifier"
	ColumnText       ColumnType = "text"
)

// ColumnAnalysis is what the Strategy Builder knows about one source column.
type ColumnAnalysis struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Description  string     `json:"description"`
	Samples      []string   `json:"samples,omitempty"`
	Completeness float64    `json:"completeness"`
	Distinct     int        `json:"distinct"`
}

// TableAnalysis is the classifier output for a whole source table.
type TableAnalysis struct {
	Purpose  string           `json:"purpose,omitempty"`
	RowCount int              `json:"row_count"`
	Columns  []ColumnAnalysis `json:"columns"`
}

// FieldNames returns the analyzed source column names in order.
func (a *TableAnalysis) FieldNames() []string {
	names := make([]string, len(a.Columns))
	for i, c := range a.Columns {
		names[i] = c.Name
	}
	return names
}
