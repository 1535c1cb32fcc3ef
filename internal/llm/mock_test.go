package llm

import (
	"context"
	"errors"
)

type MockLLM struct {
	Response string
	Err      error
	Prompts  []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

type MockStructuredLLM struct {
	MockLLM
	Schemas []ResponseSchema
}

func (m *MockStructuredLLM) GenerateStructured(ctx context.Context, prompt string, schema ResponseSchema) (string, error) {
	m.Schemas = append(m.Schemas, schema)
	return m.Generate(ctx, prompt)
}

var errProvider = errors.New("provider unavailable")
