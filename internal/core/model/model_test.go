package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schema = &TargetSchema{Columns: []Column{
	{Name: "email", ColumnSpec: ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1}},
	{Name: "notes"},
	{Name: "full_name", ColumnSpec: ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.5}},
}}

func TestTargetSchema_Partition(t *testing.T) {
	assert.Equal(t, []string{"email", "notes", "full_name"}, schema.ColumnNames())

	var entity, descriptive []string
	for _, c := range schema.EntityColumns() {
		entity = append(entity, c.Name)
	}
	for _, c := range schema.DescriptiveColumns() {
		descriptive = append(descriptive, c.Name)
	}
	assert.Equal(t, []string{"email", "full_name"}, entity)
	assert.Equal(t, []string{"notes"}, descriptive)
	assert.InDelta(t, 1.5, schema.MaxIdentityScore(), 1e-9)

	c, ok := schema.Column("full_name")
	assert.True(t, ok)
	assert.Equal(t, 0.5, c.IdentityIndication)
	_, ok = schema.Column("phone")
	assert.False(t, ok)
}

func TestColumnMapping_Validate(t *testing.T) {
	assert.NoError(t, ColumnMapping{TransformationType: TransformNone}.Validate())
	assert.NoError(t, ColumnMapping{TransformationType: TransformFormat, TransformationRule: "email"}.Validate())
	assert.ErrorIs(t, ColumnMapping{TransformationType: TransformLLMFormat}.Validate(), ErrMissingRule)
	assert.ErrorIs(t, ColumnMapping{TransformationType: "regex", TransformationRule: "x"}.Validate(), ErrInvalidMapping)
}

func TestStrategy_CheckAgainst(t *testing.T) {
	m := ColumnMapping{TransformationType: TransformNone}
	good := &Strategy{
		Entity: map[string]ColumnMapping{"email": m, "full_name": m},
		Merge:  map[string]ColumnMapping{"notes": m},
	}
	assert.NoError(t, good.CheckAgainst(schema))

	wrongSide := &Strategy{
		Entity: map[string]ColumnMapping{"email": m, "notes": m},
		Merge:  map[string]ColumnMapping{"full_name": m},
	}
	assert.ErrorIs(t, wrongSide.CheckAgainst(schema), ErrInvalidMapping)

	extra := &Strategy{
		Entity: map[string]ColumnMapping{"email": m, "full_name": m},
		Merge:  map[string]ColumnMapping{"notes": m, "phone": m},
	}
	assert.ErrorIs(t, extra.CheckAgainst(schema), ErrInvalidMapping)
}

func TestTable_AppendFillsHeader(t *testing.T) {
	table := NewTable([]string{"a", "b"})
	idx := table.Append(Row{"a": "1", "zzz": "ignored"})

	assert.Equal(t, 0, idx)
	assert.Equal(t, Row{"a": "1", "b": ""}, table.Rows[0])
	assert.True(t, table.HasColumn("b"))
	assert.False(t, table.HasColumn("zzz"))
}

func TestReport_Record(t *testing.T) {
	var r Report
	fe := FieldError{Row: 1, Column: "notes", Phase: PhaseMerge, Rule: "x", Err: errors.New("boom")}
	r.Record(RowOutcome{SourceRow: 0, Action: ActionAppended}, nil)
	r.Record(RowOutcome{SourceRow: 1, Action: ActionMerged}, []FieldError{fe})

	assert.Equal(t, 1, r.Appended)
	assert.Equal(t, 1, r.Merged)
	require.Len(t, r.Outcomes, 2)
	assert.Equal(t, 1, r.Outcomes[1].FailedCount)

	data, err := json.Marshal(r.FieldErrors[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"row":1,"column":"notes","phase":"merge","rule":"x","error":"boom"}`, string(data))
}

func TestStrategyError_Unwrap(t *testing.T) {
	err := error(&StrategyError{Column: "email", Err: ErrMissingRule})
	assert.ErrorIs(t, err, ErrMissingRule)
	assert.Contains(t, err.Error(), `"email"`)
}
