package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallRecord is one line of the LLM call log.
type CallRecord struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Purpose    string    `json:"purpose,omitempty"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// LoggingClient records every call of the wrapped client as a JSON line in
// <dir>/llm_calls.jsonl.
type LoggingClient struct {
	next LLMClient
	path string
	// Logger reports call log write failures; the call itself still succeeds.
	Logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
	ids func() string
}

const callLogFile = "llm_calls.jsonl"

func NewLoggingClient(next LLMClient, dir string) (*LoggingClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create llm log dir: %w", err)
	}
	return &LoggingClient{
		next: next,
		path: filepath.Join(dir, callLogFile),
		now:  time.Now,
		ids:  uuid.NewString,

		Logger: slog.Default(),
	}, nil
}

func (c *LoggingClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := c.now()
	resp, err := c.next.Generate(ctx, prompt)
	c.record("", prompt, resp, err, start)
	return resp, err
}

// GenerateStructured keeps structured output available through the wrapper.
// Wrapped clients without it get the schema in the prompt.
func (c *LoggingClient) GenerateStructured(ctx context.Context, prompt string, schema ResponseSchema) (string, error) {
	start := c.now()
	var (
		resp string
		err  error
	)
	if sc, ok := c.next.(StructuredClient); ok {
		resp, err = sc.GenerateStructured(ctx, prompt, schema)
	} else {
		resp, err = c.next.Generate(ctx, withSchema(prompt, schema))
	}
	c.record(schema.Name, prompt, resp, err, start)
	return resp, err
}

func (c *LoggingClient) record(purpose, prompt, resp string, callErr error, start time.Time) {
	rec := CallRecord{
		ID:         c.ids(),
		Time:       start.UTC(),
		Purpose:    purpose,
		Prompt:     prompt,
		Response:   resp,
		DurationMS: c.now().Sub(start).Milliseconds(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		c.logger().Warn("failed to encode llm call record", "id", rec.ID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger().Warn("failed to open llm call log", "path", c.path, "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		c.logger().Warn("failed to write llm call log", "path", c.path, "error", err)
	}
	if err := f.Close(); err != nil {
		c.logger().Warn("failed to close llm call log", "path", c.path, "error", err)
	}
}

func (c *LoggingClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
