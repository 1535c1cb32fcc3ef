package merge

import (
	"context"
	"testing"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/match"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func format(rule string) model.ColumnMapping {
	return model.ColumnMapping{TransformationType: model.TransformFormat, TransformationRule: rule}
}

var scenarioSchema = &model.TargetSchema{
	Purpose: "contacts",
	Columns: []model.Column{
		{Name: "email", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1.0}},
		{Name: "full_name", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.5}},
		{Name: "notes", ColumnSpec: model.ColumnSpec{}},
	},
}

var scenarioStrategy = &model.Strategy{
	Entity: map[string]model.ColumnMapping{
		"email":     format("lower(trim(email))"),
		"full_name": format("trim(full_name)"),
	},
	Merge: map[string]model.ColumnMapping{
		"notes": format(`join_nonempty(" | ", current, notes)`),
	},
}

var sourceFields = []string{"email", "full_name", "notes"}

func newArena(t *testing.T, schema *model.TargetSchema, strategy *model.Strategy, rows ...model.Row) *Arena {
	t.Helper()
	table := model.NewTable(schema.ColumnNames())
	for _, r := range rows {
		table.Append(r)
	}
	exec := transform.NewExecutor(nil, config.PromptsConfig{}, config.Default().Concurrency)
	return NewArena(schema, strategy, sourceFields, table, exec, match.DefaultThreshold)
}

func ingest(t *testing.T, a *Arena, src int, row model.Row) (match.Result, []model.FieldError) {
	t.Helper()
	ctx := context.Background()
	values, errs := a.EntityValues(ctx, src, row)
	r := a.Match(values)
	if r.Matched {
		errs = append(errs, a.MergeInto(ctx, r.Index, src, row, values)...)
	} else {
		_, more := a.Append(ctx, src, row, values)
		errs = append(errs, more...)
	}
	return r, errs
}

func TestArena_ConcreteScenario(t *testing.T) {
	a := newArena(t, scenarioSchema, scenarioStrategy,
		model.Row{"email": "j@x.com", "full_name": "", "notes": "first contact"})

	r, errs := ingest(t, a, 0, model.Row{"email": "j@x.com", "full_name": "Jane Doe", "notes": "follow-up needed"})

	require.Empty(t, errs)
	assert.True(t, r.Matched)
	assert.InDelta(t, 1.0, r.Score, 1e-9)
	require.Equal(t, 1, a.Table().Len())
	row := a.Table().Rows[0]
	assert.Equal(t, "j@x.com", row["email"])
	assert.Equal(t, "Jane Doe", row["full_name"])
	assert.Contains(t, row["notes"], "first contact")
	assert.Contains(t, row["notes"], "follow-up needed")
}

func TestArena_EntityFillOnly(t *testing.T) {
	schema := &model.TargetSchema{Columns: []model.Column{
		{Name: "email", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1.0}},
		{Name: "full_name", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.6}},
		{Name: "company", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.5}},
	}}
	strategy := &model.Strategy{
		Entity: map[string]model.ColumnMapping{
			"email":     format("email"),
			"full_name": format("full_name"),
			"company":   format("notes"),
		},
		Merge: map[string]model.ColumnMapping{},
	}
	a := newArena(t, schema, strategy, model.Row{"email": "a@x.com", "full_name": "Ann", "company": "acme"})

	r, errs := ingest(t, a, 0, model.Row{"email": "b@y.com", "full_name": "Ann", "notes": "acme"})

	require.Empty(t, errs)
	assert.True(t, r.Matched)
	require.Equal(t, 1, a.Table().Len())
	assert.Equal(t, "a@x.com", a.Table().Rows[0]["email"])
}

func TestArena_ZeroWeightEntityColumn(t *testing.T) {
	schema := &model.TargetSchema{Columns: []model.Column{
		{Name: "email", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1.0}},
		{Name: "company", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0}},
		{Name: "notes", ColumnSpec: model.ColumnSpec{}},
	}}
	strategy := &model.Strategy{
		Entity: map[string]model.ColumnMapping{
			"email":   format("email"),
			"company": format("full_name"),
		},
		Merge: map[string]model.ColumnMapping{
			"notes": format("coalesce(current, notes)"),
		},
	}

	t.Run("exact match alone does not merge", func(t *testing.T) {
		a := newArena(t, schema, strategy, model.Row{"email": "a@x.com", "company": "acme", "notes": ""})

		r, errs := ingest(t, a, 0, model.Row{"email": "b@x.com", "full_name": "acme"})

		require.Empty(t, errs)
		assert.False(t, r.Matched)
		assert.Equal(t, -1, r.Index)
		require.Equal(t, 2, a.Table().Len())
		assert.Equal(t, "acme", a.Table().Rows[1]["company"])
	})

	t.Run("filled when empty on merge", func(t *testing.T) {
		a := newArena(t, schema, strategy, model.Row{"email": "a@x.com", "company": "", "notes": ""})

		r, errs := ingest(t, a, 0, model.Row{"email": "a@x.com", "full_name": "acme"})

		require.Empty(t, errs)
		assert.True(t, r.Matched)
		assert.InDelta(t, 1.0, r.Score, 1e-9)
		require.Equal(t, 1, a.Table().Len())
		assert.Equal(t, "acme", a.Table().Rows[0]["company"])
	})

	t.Run("existing value is kept", func(t *testing.T) {
		a := newArena(t, schema, strategy, model.Row{"email": "a@x.com", "company": "acme", "notes": ""})

		r, errs := ingest(t, a, 0, model.Row{"email": "a@x.com", "full_name": "other"})

		require.Empty(t, errs)
		assert.True(t, r.Matched)
		require.Equal(t, 1, a.Table().Len())
		assert.Equal(t, "acme", a.Table().Rows[0]["company"])
	})
}

func TestArena_AppendCompleteness(t *testing.T) {
	schema := &model.TargetSchema{Columns: []model.Column{
		{Name: "email", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1.0}},
		{Name: "phone", ColumnSpec: model.ColumnSpec{}},
		{Name: "notes", ColumnSpec: model.ColumnSpec{}},
	}}
	strategy := &model.Strategy{
		Entity: map[string]model.ColumnMapping{"email": format("email")},
		Merge: map[string]model.ColumnMapping{
			"phone": {TransformationType: model.TransformNone},
			"notes": format("coalesce(current, notes)"),
		},
	}
	a := newArena(t, schema, strategy)

	r, errs := ingest(t, a, 0, model.Row{"email": "a@x.com", "notes": "hello"})

	require.Empty(t, errs)
	assert.False(t, r.Matched)
	require.Equal(t, 1, a.Table().Len())
	row := a.Table().Rows[0]
	for _, c := range schema.ColumnNames() {
		_, ok := row[c]
		assert.True(t, ok, "column %s missing", c)
	}
	assert.Equal(t, "", row["phone"])
	assert.Equal(t, "hello", row["notes"])
}

func TestArena_ReadAfterWrite(t *testing.T) {
	a := newArena(t, scenarioSchema, scenarioStrategy)

	ingest(t, a, 0, model.Row{"email": "New@X.com", "notes": "one"})
	r, _ := ingest(t, a, 1, model.Row{"email": "new@x.com ", "notes": "two"})

	assert.True(t, r.Matched)
	require.Equal(t, 1, a.Table().Len())
	assert.Equal(t, "one | two", a.Table().Rows[0]["notes"])
}

func TestArena_FieldFailureKeepsRowGoing(t *testing.T) {
	strategy := &model.Strategy{
		Entity: map[string]model.ColumnMapping{
			"email":     format("lower(email)"),
			"full_name": format(`regex_replace(full_name, "(", "")`),
		},
		Merge: map[string]model.ColumnMapping{
			"notes": format("notes"),
		},
	}
	a := newArena(t, scenarioSchema, strategy, model.Row{"email": "a@x.com", "notes": "old"})

	r, errs := ingest(t, a, 3, model.Row{"email": "A@x.com", "full_name": "Ann", "notes": "new"})

	assert.True(t, r.Matched)
	require.Len(t, errs, 1)
	assert.Equal(t, "full_name", errs[0].Column)
	assert.Equal(t, 3, errs[0].Row)
	assert.Equal(t, model.PhaseEntity, errs[0].Phase)
	assert.Equal(t, "new", a.Table().Rows[0]["notes"])
}

func TestArena_FailedMergeKeepsCurrent(t *testing.T) {
	strategy := &model.Strategy{
		Entity: scenarioStrategy.Entity,
		Merge: map[string]model.ColumnMapping{
			"notes": format(`regex_find(notes, "[")`),
		},
	}
	a := newArena(t, scenarioSchema, strategy, model.Row{"email": "a@x.com", "notes": "keep"})

	_, errs := ingest(t, a, 0, model.Row{"email": "a@x.com", "notes": "x"})

	require.Len(t, errs, 1)
	assert.Equal(t, model.PhaseMerge, errs[0].Phase)
	assert.Equal(t, "keep", a.Table().Rows[0]["notes"])
}

func TestArena_ColdStart(t *testing.T) {
	a := newArena(t, scenarioSchema, scenarioStrategy)

	for i := 0; i < 25; i++ {
		r, _ := ingest(t, a, i, model.Row{"email": string(rune('a'+i)) + "@x.com"})
		assert.False(t, r.Matched)
	}
	assert.Equal(t, 25, a.Table().Len())
}

func TestNewArena_AddsMissingColumns(t *testing.T) {
	table := model.NewTable([]string{"email"})
	table.Append(model.Row{"email": "a@x.com"})
	exec := transform.NewExecutor(nil, config.PromptsConfig{}, config.Default().Concurrency)

	a := NewArena(scenarioSchema, scenarioStrategy, sourceFields, table, exec, 0)

	assert.Equal(t, []string{"email", "full_name", "notes"}, a.Table().Columns)
}
