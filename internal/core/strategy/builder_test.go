package strategy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/core/rules"
	"github.com/agenthands/intabular/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCompleter answers by target column, read from the "name:" line of the prompt.
type MockCompleter struct {
	mu        sync.Mutex
	Responses map[string][]string
	Calls     map[string]int
	Schemas   map[string]string
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, schema llm.ResponseSchema) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	column := columnOf(prompt)
	if m.Calls == nil {
		m.Calls = map[string]int{}
		m.Schemas = map[string]string{}
	}
	m.Schemas[column] = schema.Name
	queue := m.Responses[column]
	i := m.Calls[column]
	m.Calls[column]++
	if len(queue) == 0 {
		return "", errors.New("no response for " + column)
	}
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return queue[i], nil
}

func columnOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "name: ") {
			return strings.TrimPrefix(line, "name: ")
		}
	}
	return ""
}

var testSchema = &model.TargetSchema{
	Purpose: "contacts",
	Columns: []model.Column{
		{Name: "email", ColumnSpec: model.ColumnSpec{Description: "email", IsEntityIdentifier: true, IdentityIndication: 1}},
		{Name: "full_name", ColumnSpec: model.ColumnSpec{Description: "name", IsEntityIdentifier: true, IdentityIndication: 0.5}},
		{Name: "notes", ColumnSpec: model.ColumnSpec{Description: "notes"}},
		{Name: "phone", ColumnSpec: model.ColumnSpec{Description: "phone"}},
	},
}

var testAnalysis = &model.TableAnalysis{
	Columns: []model.ColumnAnalysis{
		{Name: "e_mail", Type: model.ColumnIdentifier, Description: "email address"},
		{Name: "given", Type: model.ColumnText, Description: "first name"},
		{Name: "family", Type: model.ColumnText, Description: "last name"},
		{Name: "comment", Type: model.ColumnText, Description: "free text"},
	},
}

func newBuilder(mock *MockCompleter) *Builder {
	cc := config.Default().Concurrency
	cc.StrategyRetries = 2
	return NewBuilder(mock, config.PromptsConfig{}, cc)
}

func TestBuild(t *testing.T) {
	mock := &MockCompleter{Responses: map[string][]string{
		"email":     {`{"transformation_type":"format","transformation_rule":"lower(trim(e_mail))","reasoning":"direct"}`},
		"full_name": {"```json\n{\"transformation_type\":\"format\",\"transformation_rule\":\"lower(given + \\\" \\\" + family)\",\"reasoning\":\"concat\"}\n```"},
		"notes":     {`{"transformation_type":"format","transformation_rule":"merge_text(current, comment)","reasoning":"append"}`},
		"phone":     {`{"transformation_type":"none","transformation_rule":"","reasoning":"no phone column"}`},
	}}

	s, err := newBuilder(mock).Build(context.Background(), testSchema, testAnalysis)

	require.NoError(t, err)
	assert.Len(t, s.Entity, 2)
	assert.Len(t, s.Merge, 2)
	assert.Equal(t, "lower(trim(e_mail))", s.Entity["email"].TransformationRule)
	assert.Equal(t, `lower(given + " " + family)`, s.Entity["full_name"].TransformationRule)
	assert.Equal(t, model.TransformNone, s.Merge["phone"].TransformationType)
	assert.Equal(t, []string{"e_mail", "given", "family", "comment"}, s.SourceFields)
	assert.Equal(t, "entity_column_mapping", mock.Schemas["email"])
	assert.Equal(t, "descriptive_column_mapping", mock.Schemas["notes"])
	require.NoError(t, s.CheckAgainst(testSchema))
}

func TestBuild_MissingRuleFailsAfterRetries(t *testing.T) {
	mock := &MockCompleter{Responses: map[string][]string{
		"email":     {`{"transformation_type":"format","transformation_rule":"","reasoning":"oops"}`},
		"full_name": {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"notes":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"phone":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
	}}

	_, err := newBuilder(mock).Build(context.Background(), testSchema, testAnalysis)

	require.Error(t, err)
	var serr *model.StrategyError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "email", serr.Column)
	assert.ErrorIs(t, err, model.ErrMissingRule)
	assert.Equal(t, 3, mock.Calls["email"])
}

func TestBuild_CurrentInEntityRuleRejected(t *testing.T) {
	mock := &MockCompleter{Responses: map[string][]string{
		"email":     {`{"transformation_type":"format","transformation_rule":"coalesce(current, e_mail)","reasoning":"keep"}`},
		"full_name": {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"notes":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"phone":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
	}}

	_, err := newBuilder(mock).Build(context.Background(), testSchema, testAnalysis)

	assert.ErrorIs(t, err, rules.ErrInvalidRule)
}

func TestBuild_RecoversOnRetry(t *testing.T) {
	mock := &MockCompleter{Responses: map[string][]string{
		"email": {
			`{"transformation_type":"format","transformation_rule":"lower(mail)","reasoning":"unknown field"}`,
			`{"transformation_type":"format","transformation_rule":"lower(e_mail)","reasoning":"fixed"}`,
		},
		"full_name": {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"notes":     {`{"transformation_type":"llm_format","transformation_rule":"comment","reasoning":"summarize"}`},
		"phone":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
	}}

	s, err := newBuilder(mock).Build(context.Background(), testSchema, testAnalysis)

	require.NoError(t, err)
	assert.Equal(t, "lower(e_mail)", s.Entity["email"].TransformationRule)
	assert.Equal(t, 2, mock.Calls["email"])
}

func TestBuild_UnknownTypeRejected(t *testing.T) {
	mock := &MockCompleter{Responses: map[string][]string{
		"email":     {`{"transformation_type":"python","transformation_rule":"e_mail.lower()","reasoning":""}`},
		"full_name": {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"notes":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
		"phone":     {`{"transformation_type":"none","transformation_rule":"","reasoning":""}`},
	}}

	_, err := newBuilder(mock).Build(context.Background(), testSchema, testAnalysis)

	assert.ErrorIs(t, err, model.ErrInvalidMapping)
}

func TestCheckStrategy(t *testing.T) {
	fields := testAnalysis.FieldNames()
	s := &model.Strategy{
		Entity: map[string]model.ColumnMapping{
			"email":     {TransformationType: model.TransformFormat, TransformationRule: "lower(e_mail)"},
			"full_name": {TransformationType: model.TransformNone},
		},
		Merge: map[string]model.ColumnMapping{
			"notes": {TransformationType: model.TransformFormat, TransformationRule: "merge_text(current, comment)"},
			"phone": {TransformationType: model.TransformNone},
		},
	}
	require.NoError(t, CheckStrategy(s, testSchema, fields))

	// Source without the e_mail column.
	err := CheckStrategy(s, testSchema, []string{"given", "family", "comment"})
	var serr *model.StrategyError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "email", serr.Column)

	delete(s.Merge, "phone")
	assert.ErrorIs(t, CheckStrategy(s, testSchema, fields), model.ErrInvalidMapping)
}
