package model

import "time"

type RowAction string

const (
	ActionMerged   RowAction = "merged"
	ActionAppended RowAction = "appended"
)

// RowOutcome records what happened to one source row.
type RowOutcome struct {
	SourceRow   int       `json:"source_row"`
	Action      RowAction `json:"action"`
	TargetRow   int       `json:"target_row"`
	Score       float64   `json:"score"`
	FailedCount int       `json:"failed_fields,omitempty"`
}

// Report summarizes one ingestion run.
type Report struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	SourceRows  int          `json:"source_rows"`
	TargetRows  int          `json:"target_rows"`
	Merged      int          `json:"merged"`
	Appended    int          `json:"appended"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	Outcomes    []RowOutcome `json:"outcomes,omitempty"`
}

func (r *Report) Record(o RowOutcome, errs []FieldError) {
	switch o.Action {
	case ActionMerged:
		r.Merged++
	case ActionAppended:
		r.Appended++
	}
	o.FailedCount = len(errs)
	r.Outcomes = append(r.Outcomes, o)
	r.FieldErrors = append(r.FieldErrors, errs...)
}
