// Package match finds the existing target row a source row describes.
//
// A row's score is the sum of identity_indication over the entity columns
// whose stored value equals the transformed source value. The best-scoring
// row wins, ties go to the lowest row index, and the match is accepted only
// when the score reaches the threshold.
package match

import (
	"github.com/agenthands/intabular/internal/core/model"
)

// DefaultThreshold is the minimum score for a match.
const DefaultThreshold = 1.0

// Scores within epsilon of the threshold count as reaching it, so that
// 0.3+0.7 matches like 1.0 does.
const epsilon = 1e-9

// Weight is one scoring entity column.
type Weight struct {
	Column string
	Value  float64
}

// Result of a match. Index is -1 when the table has no candidate row.
type Result struct {
	Index   int
	Score   float64
	Matched bool
}

// Weights returns the entity columns with a positive identity indication,
// in schema order.
func Weights(schema *model.TargetSchema) []Weight {
	var out []Weight
	for _, c := range schema.EntityColumns() {
		if c.IdentityIndication > 0 {
			out = append(out, Weight{Column: c.Name, Value: c.IdentityIndication})
		}
	}
	return out
}

// Score computes a row's identity score. Empty source values never
// contribute.
func Score(weights []Weight, row model.Row, values map[string]string) float64 {
	var score float64
	for _, w := range weights {
		v := values[w.Column]
		if v != "" && row[w.Column] == v {
			score += w.Value
		}
	}
	return score
}

// Matcher keeps a per-column hash index over a target table. The index must
// be told about every entity cell written after Rebuild.
type Matcher struct {
	weights   []Weight
	threshold float64
	table     *model.Table
	index     map[string]map[string][]int
}

// NewMatcher returns a matcher for schema. A non-positive threshold selects
// DefaultThreshold.
func NewMatcher(schema *model.TargetSchema, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{
		weights:   Weights(schema),
		threshold: threshold,
		table:     model.NewTable(schema.ColumnNames()),
		index:     make(map[string]map[string][]int),
	}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Rebuild indexes every row of table and tracks it from now on.
func (m *Matcher) Rebuild(table *model.Table) {
	m.table = table
	m.index = make(map[string]map[string][]int, len(m.weights))
	for _, w := range m.weights {
		m.index[w.Column] = make(map[string][]int)
	}
	for i, row := range table.Rows {
		m.ObserveRow(i, row)
	}
}

// ObserveRow indexes a newly appended row.
func (m *Matcher) ObserveRow(idx int, row model.Row) {
	for _, w := range m.weights {
		m.add(w.Column, row[w.Column], idx)
	}
}

// Observe updates the index after a cell changed from old to value.
func (m *Matcher) Observe(idx int, column, old, value string) {
	if old == value {
		return
	}
	col, ok := m.index[column]
	if !ok {
		return
	}
	if old != "" {
		rows := col[old]
		for i, r := range rows {
			if r == idx {
				col[old] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		if len(col[old]) == 0 {
			delete(col, old)
		}
	}
	m.add(column, value, idx)
}

func (m *Matcher) add(column, value string, idx int) {
	if value == "" {
		return
	}
	col, ok := m.index[column]
	if !ok {
		col = make(map[string][]int)
		m.index[column] = col
	}
	col[value] = append(col[value], idx)
}

// Match scores the candidate rows sharing at least one entity value with
// values and returns the best one.
func (m *Matcher) Match(values map[string]string) Result {
	scores := make(map[int]float64)
	for _, w := range m.weights {
		v := values[w.Column]
		if v == "" {
			continue
		}
		for _, idx := range m.index[w.Column][v] {
			scores[idx] += w.Value
		}
	}

	best := Result{Index: -1}
	for idx, s := range scores {
		if best.Index == -1 || s > best.Score || (s == best.Score && idx < best.Index) {
			best = Result{Index: idx, Score: s}
		}
	}
	best.Matched = best.Index >= 0 && m.accepts(best.Score)
	return best
}

// Scan is Match without the index: it scores every row. It exists to check
// the index and for callers without one.
func (m *Matcher) Scan(values map[string]string) Result {
	best := Result{Index: -1}
	for idx, row := range m.table.Rows {
		s := Score(m.weights, row, values)
		if s > 0 && (best.Index == -1 || s > best.Score) {
			best = Result{Index: idx, Score: s}
		}
	}
	best.Matched = best.Index >= 0 && m.accepts(best.Score)
	return best
}

func (m *Matcher) accepts(score float64) bool {
	return score >= m.threshold-epsilon
}
