// Package strategy asks the LLM for one column mapping per target column.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/common"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/rules"
	"github.com/agenthands/intabular/internal/llm"
)

const mappingSchema = `{
  "type": "object",
  "properties": {
    "transformation_type": {"type": "string", "enum": ["format", "llm_format", "none"]},
    "transformation_rule": {"type": "string"},
    "reasoning": {"type": "string"}
  },
  "required": ["transformation_type", "transformation_rule", "reasoning"],
  "additionalProperties": false
}`

var (
	entitySchema      = llm.ResponseSchema{Name: "entity_column_mapping", Schema: json.RawMessage(mappingSchema)}
	descriptiveSchema = llm.ResponseSchema{Name: "descriptive_column_mapping", Schema: json.RawMessage(mappingSchema)}
)

type Builder struct {
	LLM     llm.Completer
	Prompts config.PromptsConfig
	Options common.ParallelOptions
	Logger  *slog.Logger
}

func NewBuilder(completer llm.Completer, prompts config.PromptsConfig, cc config.ConcurrencyConfig) *Builder {
	if prompts.EntityColumn == "" {
		prompts.EntityColumn = DefaultEntityColumnPrompt
	}
	if prompts.DescriptiveColumn == "" {
		prompts.DescriptiveColumn = DefaultDescriptiveColumnPrompt
	}
	return &Builder{
		LLM:     completer,
		Prompts: prompts,
		Options: common.ParallelOptions{
			Workers: cc.StrategyWorkers,
			Timeout: cc.StrategyTimeout(),
			Retries: cc.StrategyRetries,
		},
		Logger: slog.Default(),
	}
}

// Build produces a mapping for every schema column. Entity columns go to
// Strategy.Entity and descriptive columns to Strategy.Merge. A column whose
// mapping cannot be obtained after all retries fails the whole build with a
// *model.StrategyError.
func (b *Builder) Build(ctx context.Context, schema *model.TargetSchema, analysis *model.TableAnalysis) (*model.Strategy, error) {
	fields := analysis.FieldNames()
	sourceInfo, err := json.MarshalIndent(analysis.Columns, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode source analysis: %w", err)
	}
	b.logger().Info("creating ingestion strategy", "columns", len(schema.Columns), "source_fields", len(fields))

	mappings, err := common.ParallelMap(ctx, schema.Columns, b.Options, func(ctx context.Context, col model.Column) (model.ColumnMapping, error) {
		return b.mapColumn(ctx, schema.Purpose, col, string(sourceInfo), fields)
	})
	if err != nil {
		var itemErr *common.ItemError
		if errors.As(err, &itemErr) {
			return nil, &model.StrategyError{Column: schema.Columns[itemErr.Index].Name, Err: itemErr.Err}
		}
		return nil, err
	}

	s := &model.Strategy{
		Entity:       make(map[string]model.ColumnMapping),
		Merge:        make(map[string]model.ColumnMapping),
		SourceFields: fields,
	}
	for i, col := range schema.Columns {
		if col.IsEntityIdentifier {
			s.Entity[col.Name] = mappings[i]
		} else {
			s.Merge[col.Name] = mappings[i]
		}
		b.logger().Debug("column mapping", "column", col.Name, "type", mappings[i].TransformationType, "rule", mappings[i].TransformationRule)
	}
	return s, nil
}

func (b *Builder) mapColumn(ctx context.Context, purpose string, col model.Column, sourceInfo string, fields []string) (model.ColumnMapping, error) {
	template, schema := b.Prompts.DescriptiveColumn, descriptiveSchema
	if col.IsEntityIdentifier {
		template, schema = b.Prompts.EntityColumn, entitySchema
	}
	prompt := fmt.Sprintf(template, purpose, columnInfo(col), sourceInfo, strings.Join(rules.FunctionNames(), ", "))

	response, err := b.LLM.Complete(ctx, prompt, schema)
	if err != nil {
		return model.ColumnMapping{}, fmt.Errorf("failed to generate column mapping: %w", err)
	}
	m, err := common.ParseJSON[model.ColumnMapping](response)
	if err != nil {
		return model.ColumnMapping{}, err
	}
	if err := Validate(m, fields, !col.IsEntityIdentifier); err != nil {
		b.logger().Warn("rejected column mapping", "column", col.Name, "rule", m.TransformationRule, "error", err)
		return model.ColumnMapping{}, err
	}
	return m, nil
}

// Validate checks a mapping's shape and compiles its rule against fields.
// Only merge mappings may refer to current.
func Validate(m model.ColumnMapping, fields []string, merge bool) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.TransformationType == model.TransformNone {
		return nil
	}
	_, err := rules.Compile(m.TransformationRule, fields, rules.Options{AllowCurrent: merge})
	return err
}

// CheckStrategy validates a strategy loaded from disk against a schema and
// the source header it will run on.
func CheckStrategy(s *model.Strategy, schema *model.TargetSchema, fields []string) error {
	if err := s.CheckAgainst(schema); err != nil {
		return err
	}
	for name, m := range s.Entity {
		if err := Validate(m, fields, false); err != nil {
			return &model.StrategyError{Column: name, Err: err}
		}
	}
	for name, m := range s.Merge {
		if err := Validate(m, fields, true); err != nil {
			return &model.StrategyError{Column: name, Err: err}
		}
	}
	return nil
}

func columnInfo(col model.Column) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "name: %s\ndescription: %s\n", col.Name, col.Description)
	if col.IsEntityIdentifier {
		fmt.Fprintf(&sb, "entity identifier: yes (identity weight %.2f)\n", col.IdentityIndication)
	} else {
		sb.WriteString("entity identifier: no\n")
	}
	return sb.String()
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
