package model

import "fmt"

type TransformationType string

const (
	TransformFormat    TransformationType = "format"
	TransformLLMFormat TransformationType = "llm_format"
	TransformNone      TransformationType = "none"
)

func (t TransformationType) Valid() bool {
	switch t {
	case TransformFormat, TransformLLMFormat, TransformNone:
		return true
	}
	return false
}

// ColumnMapping is the LLM's answer to "how do I fill this target column".
type ColumnMapping struct {
	TransformationType TransformationType `json:"transformation_type"`
	TransformationRule string             `json:"transformation_rule"`
	Reasoning          string             `json:"reasoning"`
}

// Validate checks the mapping shape. It does not compile the rule.
func (m ColumnMapping) Validate() error {
	if !m.TransformationType.Valid() {
		return fmt.Errorf("%w: unknown transformation type %q", ErrInvalidMapping, m.TransformationType)
	}
	if m.TransformationType != TransformNone && m.TransformationRule == "" {
		return fmt.Errorf("%w for transformation type %q", ErrMissingRule, m.TransformationType)
	}
	return nil
}

// Strategy holds one mapping per target column. It is built once per
// (schema, source shape) and read-only afterwards.
type Strategy struct {
	// Entity holds mappings for entity columns; rules never see `current`.
	Entity map[string]ColumnMapping `json:"entity"`
	// Merge holds mappings for descriptive columns; rules may use `current`.
	Merge map[string]ColumnMapping `json:"merge"`
	// SourceFields is the sanitized source header the rules were built against.
	SourceFields []string `json:"source_fields"`
}

// Mapping returns the mapping for a column from whichever side owns it.
func (s *Strategy) Mapping(column string) (ColumnMapping, bool) {
	if m, ok := s.Entity[column]; ok {
		return m, true
	}
	m, ok := s.Merge[column]
	return m, ok
}

// CheckAgainst verifies that the strategy covers exactly the schema's columns
// on the correct side. A strategy loaded from disk must pass this before use.
func (s *Strategy) CheckAgainst(schema *TargetSchema) error {
	for _, c := range schema.Columns {
		var ok bool
		if c.IsEntityIdentifier {
			_, ok = s.Entity[c.Name]
		} else {
			_, ok = s.Merge[c.Name]
		}
		if !ok {
			return fmt.Errorf("%w: strategy has no mapping for column %q", ErrInvalidMapping, c.Name)
		}
	}
	if len(s.Entity)+len(s.Merge) != len(schema.Columns) {
		return fmt.Errorf("%w: strategy covers %d columns, schema has %d",
			ErrInvalidMapping, len(s.Entity)+len(s.Merge), len(schema.Columns))
	}
	return nil
}
