package llm

import (
	"context"
	"encoding/json"
)

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseSchema names a JSON schema the response must satisfy.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

// StructuredClient is implemented by providers with native structured output.
type StructuredClient interface {
	LLMClient
	GenerateStructured(ctx context.Context, prompt string, schema ResponseSchema) (string, error)
}

// Completer turns a prompt and a response schema into a JSON document.
type Completer interface {
	Complete(ctx context.Context, prompt string, schema ResponseSchema) (string, error)
}
