package model

// ColumnSpec describes one target column.
type ColumnSpec struct {
	Description string `json:"description" yaml:"description"`
	// IsEntityIdentifier marks columns that take part in identity matching.
	// Entity columns are filled when empty and never content-merged.
	IsEntityIdentifier bool `json:"is_entity_identifier" yaml:"is_entity_identifier"`
	// IdentityIndication is the weight an exact match on this column adds to
	// a row's match score. Zero keeps the column out of the score.
	IdentityIndication float64 `json:"identity_indication" yaml:"identity_indication"`
}

// Column is a named ColumnSpec, in schema order.
type Column struct {
	Name string `json:"name"`
	ColumnSpec
}

// TargetSchema is the declarative description of the target table.
type TargetSchema struct {
	Purpose string   `json:"purpose"`
	Columns []Column `json:"columns"`

	// TargetPath is the default target location when none is given explicitly.
	TargetPath string `json:"target_file_path,omitempty"`
	// SampleRows is how many source values the classifier shows the LLM.
	SampleRows int `json:"sample_rows,omitempty"`
	// MatchThreshold overrides the matcher threshold when positive.
	MatchThreshold float64 `json:"match_threshold,omitempty"`
}

// ColumnNames returns all column names in schema order.
func (s *TargetSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s *TargetSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// EntityColumns returns the columns flagged as entity identifiers, including
// those with zero identity indication.
func (s *TargetSchema) EntityColumns() []Column {
	var out []Column
	for _, c := range s.Columns {
		if c.IsEntityIdentifier {
			out = append(out, c)
		}
	}
	return out
}

// DescriptiveColumns returns every column that is not an entity identifier.
func (s *TargetSchema) DescriptiveColumns() []Column {
	var out []Column
	for _, c := range s.Columns {
		if !c.IsEntityIdentifier {
			out = append(out, c)
		}
	}
	return out
}

// MaxIdentityScore is the largest score a row can reach.
func (s *TargetSchema) MaxIdentityScore() float64 {
	var sum float64
	for _, c := range s.EntityColumns() {
		sum += c.IdentityIndication
	}
	return sum
}
