// Package schema loads and writes target schemas as YAML.
package schema

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agenthands/intabular/internal/core/model"
)

// ErrLegacyColumns is returned for enrichment_columns given as a bare list of
// names. Every column needs a description and an identity declaration.
var ErrLegacyColumns = errors.New("enrichment_columns must be a mapping of column name to spec")

// ErrInvalidSchema wraps every validation failure.
var ErrInvalidSchema = errors.New("invalid schema")

type document struct {
	Purpose           string     `yaml:"purpose"`
	TargetFilePath    string     `yaml:"target_file_path,omitempty"`
	SampleRows        int        `yaml:"sample_rows,omitempty"`
	MatchThreshold    float64    `yaml:"match_threshold,omitempty"`
	EnrichmentColumns columnList `yaml:"enrichment_columns"`
}

type columnDoc struct {
	Description        *string  `yaml:"description"`
	IsEntityIdentifier *bool    `yaml:"is_entity_identifier"`
	IdentityIndication *float64 `yaml:"identity_indication,omitempty"`
}

type namedColumn struct {
	name string
	line int
	doc  columnDoc
}

// columnList keeps YAML document order.
type columnList []namedColumn

func (c *columnList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return fmt.Errorf("line %d: %w", node.Line, ErrLegacyColumns)
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: enrichment_columns must be a mapping", node.Line)
	}

	out := make(columnList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var doc columnDoc
		if err := value.Decode(&doc); err != nil {
			return fmt.Errorf("column %q: %w", key.Value, err)
		}
		out = append(out, namedColumn{name: key.Value, line: key.Line, doc: doc})
	}
	*c = out
	return nil
}

func (c columnList) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range c {
		var value yaml.Node
		if err := value.Encode(col.doc); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: col.name},
			&value,
		)
	}
	return node, nil
}

// LoadFile loads and validates a schema from a YAML file.
func LoadFile(path string) (*model.TargetSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data into a validated TargetSchema.
func Parse(data []byte) (*model.TargetSchema, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, ErrLegacyColumns) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}

	s := &model.TargetSchema{
		Purpose:        doc.Purpose,
		TargetPath:     doc.TargetFilePath,
		SampleRows:     doc.SampleRows,
		MatchThreshold: doc.MatchThreshold,
	}
	seen := make(map[string]bool, len(doc.EnrichmentColumns))
	for _, col := range doc.EnrichmentColumns {
		c, err := toColumn(col)
		if err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c.Name)
		}
		seen[c.Name] = true
		s.Columns = append(s.Columns, c)
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func toColumn(col namedColumn) (model.Column, error) {
	if col.doc.Description == nil {
		return model.Column{}, fmt.Errorf("%w: column %q (line %d): description is required", ErrInvalidSchema, col.name, col.line)
	}
	if col.doc.IsEntityIdentifier == nil {
		return model.Column{}, fmt.Errorf("%w: column %q (line %d): is_entity_identifier is required", ErrInvalidSchema, col.name, col.line)
	}
	c := model.Column{
		Name: col.name,
		ColumnSpec: model.ColumnSpec{
			Description:        *col.doc.Description,
			IsEntityIdentifier: *col.doc.IsEntityIdentifier,
		},
	}
	if col.doc.IdentityIndication != nil {
		c.IdentityIndication = *col.doc.IdentityIndication
	} else if c.IsEntityIdentifier {
		return model.Column{}, fmt.Errorf("%w: column %q (line %d): identity_indication is required for entity identifiers", ErrInvalidSchema, col.name, col.line)
	}
	return c, nil
}

// Validate checks the invariants of a schema built in code or decoded.
func Validate(s *model.TargetSchema) error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: column name must not be empty", ErrInvalidSchema)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c.Name)
		}
		seen[c.Name] = true

		w := c.IdentityIndication
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: column %q: identity_indication must be within [0, 1], got %v", ErrInvalidSchema, c.Name, w)
		}
		if !c.IsEntityIdentifier && w != 0 {
			return fmt.Errorf("%w: column %q: identity_indication must be 0 for descriptive columns", ErrInvalidSchema, c.Name)
		}
	}
	if s.SampleRows < 0 {
		return fmt.Errorf("%w: sample_rows must not be negative", ErrInvalidSchema)
	}
	if s.MatchThreshold < 0 {
		return fmt.Errorf("%w: match_threshold must not be negative", ErrInvalidSchema)
	}
	return nil
}

// Marshal serializes a schema to YAML in column order.
func Marshal(s *model.TargetSchema) ([]byte, error) {
	doc := document{
		Purpose:        s.Purpose,
		TargetFilePath: s.TargetPath,
		SampleRows:     s.SampleRows,
		MatchThreshold: s.MatchThreshold,
	}
	for _, c := range s.Columns {
		desc, entity := c.Description, c.IsEntityIdentifier
		col := namedColumn{name: c.Name, doc: columnDoc{Description: &desc, IsEntityIdentifier: &entity}}
		if entity {
			w := c.IdentityIndication
			col.doc.IdentityIndication = &w
		}
		doc.EnrichmentColumns = append(doc.EnrichmentColumns, col)
	}
	return yaml.Marshal(&doc)
}

// WriteFile writes a schema to the given path.
func WriteFile(s *model.TargetSchema, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write schema file %s: %w", path, err)
	}
	return nil
}
