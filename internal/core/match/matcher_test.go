package match

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/agenthands/intabular/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactSchema() *model.TargetSchema {
	return &model.TargetSchema{
		Columns: []model.Column{
			{Name: "email", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 1.0}},
			{Name: "full_name", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.6}},
			{Name: "company", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.5}},
			{Name: "notes", ColumnSpec: model.ColumnSpec{}},
		},
	}
}

func tableOf(rows ...model.Row) *model.Table {
	t := model.NewTable([]string{"email", "full_name", "company", "notes"})
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func newMatcher(rows ...model.Row) *Matcher {
	m := NewMatcher(contactSchema(), DefaultThreshold)
	m.Rebuild(tableOf(rows...))
	return m
}

func TestMatch_EmptyTableNeverMatches(t *testing.T) {
	m := newMatcher()

	r := m.Match(map[string]string{"email": "a@x.com", "full_name": "alice", "company": "acme"})

	assert.False(t, r.Matched)
	assert.Equal(t, -1, r.Index)
}

func TestMatch_StrongIdentifierIsSufficient(t *testing.T) {
	m := newMatcher(model.Row{"email": "a@x.com", "full_name": "alice"})

	r := m.Match(map[string]string{"email": "a@x.com", "full_name": "someone else"})

	assert.True(t, r.Matched)
	assert.Equal(t, 0, r.Index)
	assert.InDelta(t, 1.0, r.Score, 1e-9)
}

func TestMatch_CompositionalThreshold(t *testing.T) {
	m := newMatcher(model.Row{"email": "a@x.com", "full_name": "alice", "company": "acme"})

	// 0.6 + 0.5 reaches the threshold without the email.
	r := m.Match(map[string]string{"email": "other@x.com", "full_name": "alice", "company": "acme"})
	assert.True(t, r.Matched)
	assert.InDelta(t, 1.1, r.Score, 1e-9)

	// 0.6 alone does not.
	r = m.Match(map[string]string{"email": "other@x.com", "full_name": "alice", "company": "globex"})
	assert.False(t, r.Matched)
	assert.Equal(t, 0, r.Index)
	assert.InDelta(t, 0.6, r.Score, 1e-9)
}

func TestMatch_FloatSumReachesThreshold(t *testing.T) {
	schema := &model.TargetSchema{Columns: []model.Column{
		{Name: "a", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.1}},
		{Name: "b", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.2}},
		{Name: "c", ColumnSpec: model.ColumnSpec{IsEntityIdentifier: true, IdentityIndication: 0.7}},
	}}
	m := NewMatcher(schema, 0)
	table := model.NewTable([]string{"a", "b", "c"})
	table.Append(model.Row{"a": "1", "b": "2", "c": "3"})
	m.Rebuild(table)

	r := m.Match(map[string]string{"a": "1", "b": "2", "c": "3"})

	assert.True(t, r.Matched)
}

func TestMatch_TieGoesToLowestIndex(t *testing.T) {
	m := newMatcher(
		model.Row{"email": "x@x.com"},
		model.Row{"email": "dup@x.com"},
		model.Row{"email": "dup@x.com"},
	)

	r := m.Match(map[string]string{"email": "dup@x.com"})

	assert.True(t, r.Matched)
	assert.Equal(t, 1, r.Index)
}

func TestMatch_BestScoreWins(t *testing.T) {
	m := newMatcher(
		model.Row{"email": "a@x.com"},
		model.Row{"email": "a@x.com", "full_name": "alice"},
	)

	r := m.Match(map[string]string{"email": "a@x.com", "full_name": "alice"})

	assert.Equal(t, 1, r.Index)
	assert.InDelta(t, 1.6, r.Score, 1e-9)
}

func TestMatch_EmptyValuesDoNotMatchEmptyCells(t *testing.T) {
	m := newMatcher(model.Row{"email": "", "full_name": "", "company": ""})

	r := m.Match(map[string]string{"email": "", "full_name": "", "company": ""})

	assert.False(t, r.Matched)
	assert.Equal(t, 0.0, r.Score)
}

func TestMatch_ObserveKeepsIndexCurrent(t *testing.T) {
	table := tableOf(model.Row{"full_name": "bob"})
	m := NewMatcher(contactSchema(), DefaultThreshold)
	m.Rebuild(table)

	table.Set(0, "email", "bob@x.com")
	m.Observe(0, "email", "", "bob@x.com")
	idx := table.Append(model.Row{"email": "carol@x.com"})
	m.ObserveRow(idx, table.Rows[idx])

	assert.Equal(t, 0, m.Match(map[string]string{"email": "bob@x.com"}).Index)
	assert.Equal(t, 1, m.Match(map[string]string{"email": "carol@x.com"}).Index)

	table.Set(1, "email", "c@x.com")
	m.Observe(1, "email", "carol@x.com", "c@x.com")
	assert.False(t, m.Match(map[string]string{"email": "carol@x.com"}).Matched)
}

func TestMatch_CustomThreshold(t *testing.T) {
	m := NewMatcher(contactSchema(), 0.5)
	m.Rebuild(tableOf(model.Row{"company": "acme"}))

	assert.True(t, m.Match(map[string]string{"company": "acme"}).Matched)
	assert.Equal(t, 0.5, m.Threshold())
}

func TestMatch_IndexAgreesWithScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pick := func(prefix string, n int) string {
		if rng.Intn(4) == 0 {
			return ""
		}
		return fmt.Sprintf("%s%d", prefix, rng.Intn(n))
	}

	var rows []model.Row
	for i := 0; i < 200; i++ {
		rows = append(rows, model.Row{"email": pick("e", 60), "full_name": pick("n", 20), "company": pick("c", 8)})
	}
	m := newMatcher(rows...)

	for i := 0; i < 500; i++ {
		values := map[string]string{"email": pick("e", 80), "full_name": pick("n", 25), "company": pick("c", 10)}
		want := m.Scan(values)
		got := m.Match(values)
		require.Equal(t, want, got, "values %v", values)
	}
}

func TestScore(t *testing.T) {
	w := Weights(contactSchema())
	require.Len(t, w, 3)

	row := model.Row{"email": "a", "full_name": "b", "company": "c", "notes": "n"}
	assert.InDelta(t, 2.1, Score(w, row, map[string]string{"email": "a", "full_name": "b", "company": "c", "notes": "n"}), 1e-9)
	assert.Equal(t, 0.0, Score(w, row, map[string]string{"notes": "n"}))
}
