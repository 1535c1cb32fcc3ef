// Package transform applies column mappings to source rows.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/common"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/rules"
	"github.com/agenthands/intabular/internal/llm"
)

// DefaultLLMFormatPrompt is filled with purpose, column name, column
// description, the current target value and the intermediate value.
const DefaultLLMFormatPrompt = `You normalize a single value for a data table.

GENERAL PURPOSE OF DATA: %s
TARGET COLUMN: %s
TARGET COLUMN DESCRIPTION: %s
CURRENT VALUE IN TARGET (may be empty): %s
INPUT VALUE: %s

Return the value exactly as it should be stored in the target column. If the
current value is not empty, combine it with the input so that no information
is lost and nothing is repeated. Return an empty string if the input carries
no usable information.`

var valueSchema = llm.ResponseSchema{
	Name: "formatted_value",
	Schema: json.RawMessage(`{
  "type": "object",
  "properties": {"value": {"type": "string"}},
  "required": ["value"],
  "additionalProperties": false
}`),
}

type formattedValue struct {
	Value string `json:"value"`
}

// Request describes one field to compute.
type Request struct {
	Purpose string
	Column  model.Column
	Mapping model.ColumnMapping
	// Fields is the source header the rule was written against.
	Fields []string
	Row    model.Row
	// Merge exposes Current to the rule.
	Merge   bool
	Current string
}

type programKey struct {
	rule   string
	fields string
	merge  bool
}

// Executor evaluates mappings. Compiled rules are cached, so one Executor
// should serve a whole run.
type Executor struct {
	LLM     llm.Completer
	Prompt  string
	Retries int
	Timeout time.Duration
	Logger  *slog.Logger

	mu       sync.Mutex
	programs map[programKey]*rules.Program
}

func NewExecutor(completer llm.Completer, prompts config.PromptsConfig, cc config.ConcurrencyConfig) *Executor {
	prompt := prompts.LLMFormat
	if prompt == "" {
		prompt = DefaultLLMFormatPrompt
	}
	return &Executor{
		LLM:      completer,
		Prompt:   prompt,
		Retries:  cc.LLMRetries,
		Timeout:  cc.LLMTimeout(),
		Logger:   slog.Default(),
		programs: make(map[programKey]*rules.Program),
	}
}

// Apply computes the value of one target field. The boolean is false when
// the mapping yields no value; callers treat that as "leave as is".
func (e *Executor) Apply(ctx context.Context, req Request) (string, bool, error) {
	switch req.Mapping.TransformationType {
	case model.TransformNone:
		return "", false, nil
	case model.TransformFormat:
		return e.evaluate(req)
	case model.TransformLLMFormat:
		intermediate, ok, err := e.evaluate(req)
		if err != nil || !ok {
			return "", false, err
		}
		return e.finalize(ctx, req, intermediate)
	default:
		return "", false, fmt.Errorf("%w: unknown transformation type %q", model.ErrInvalidMapping, req.Mapping.TransformationType)
	}
}

// Program returns the cached compiled rule, compiling it on first use.
func (e *Executor) Program(rule string, fields []string, merge bool) (*rules.Program, error) {
	key := programKey{rule: rule, fields: strings.Join(fields, "\x00"), merge: merge}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.programs == nil {
		e.programs = make(map[programKey]*rules.Program)
	}
	if p, ok := e.programs[key]; ok {
		return p, nil
	}
	p, err := rules.Compile(rule, fields, rules.Options{AllowCurrent: merge})
	if err != nil {
		return nil, err
	}
	e.programs[key] = p
	return p, nil
}

func (e *Executor) evaluate(req Request) (string, bool, error) {
	if req.Mapping.TransformationRule == "" {
		return "", false, fmt.Errorf("%w for transformation type %q", model.ErrMissingRule, req.Mapping.TransformationType)
	}
	p, err := e.Program(req.Mapping.TransformationRule, req.Fields, req.Merge)
	if err != nil {
		return "", false, err
	}
	return p.Eval(req.Row, req.Current)
}

func (e *Executor) finalize(ctx context.Context, req Request, intermediate string) (string, bool, error) {
	if e.LLM == nil {
		return "", false, fmt.Errorf("llm_format mapping for column %q needs an LLM", req.Column.Name)
	}
	prompt := fmt.Sprintf(e.Prompt, req.Purpose, req.Column.Name, req.Column.Description, req.Current, intermediate)

	value, err := common.Retry(ctx, e.Retries, 0, func(ctx context.Context) (string, error) {
		if e.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}
		resp, err := e.LLM.Complete(ctx, prompt, valueSchema)
		if err != nil {
			return "", fmt.Errorf("failed to generate formatted value: %w", err)
		}
		out, err := common.ParseJSON[formattedValue](resp)
		if err != nil {
			return "", err
		}
		return out.Value, nil
	})
	if err != nil {
		return "", false, err
	}
	e.logger().Debug("llm formatted value", "column", req.Column.Name, "input", common.Truncate(intermediate, 80), "output", common.Truncate(value, 80))
	return value, value != "", nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
