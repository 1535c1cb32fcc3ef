package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewCompleter adapts an LLMClient to the Completer capability. Providers with
// native structured output get the schema as a response format; the rest get
// it appended to the prompt.
func NewCompleter(client LLMClient) Completer {
	return &completer{client: client}
}

type completer struct {
	client LLMClient
}

func (c *completer) Complete(ctx context.Context, prompt string, schema ResponseSchema) (string, error) {
	if sc, ok := c.client.(StructuredClient); ok && len(schema.Schema) > 0 {
		return sc.GenerateStructured(ctx, prompt, schema)
	}
	return c.client.Generate(ctx, withSchema(prompt, schema))
}

func withSchema(prompt string, schema ResponseSchema) string {
	if len(schema.Schema) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nRespond with a single JSON object only, matching this JSON schema")
	if schema.Name != "" {
		fmt.Fprintf(&sb, " (%s)", schema.Name)
	}
	sb.WriteString(":\n")
	sb.Write(schema.Schema)
	return sb.String()
}
