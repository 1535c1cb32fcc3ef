package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingRule means a non-none mapping came back without a rule.
	ErrMissingRule = errors.New("transformation rule is required")
	// ErrInvalidMapping means a mapping or strategy has the wrong shape.
	ErrInvalidMapping = errors.New("invalid column mapping")
)

// StrategyError is a fatal failure to produce a mapping for one column.
type StrategyError struct {
	Column string
	Err    error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy for column %q: %v", e.Column, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// Phase names the step of row processing where a field failed.
type Phase string

const (
	PhaseEntity Phase = "entity"
	PhaseMerge  Phase = "merge"
	PhaseAppend Phase = "append"
)

// FieldError is a recoverable failure on one field of one source row.
type FieldError struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Phase  Phase  `json:"phase"`
	Rule   string `json:"rule"`
	Err    error  `json:"-"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("row %d column %q (%s): %v", e.Row, e.Column, e.Phase, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

func (e FieldError) MarshalJSON() ([]byte, error) {
	type alias FieldError
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		alias
		Error string `json:"error"`
	}{alias(e), msg})
}
