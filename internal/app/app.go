// Package app assembles configuration, logging and the LLM client shared
// by the command line and the server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core"
	"github.com/agenthands/intabular/internal/llm"
	"github.com/agenthands/intabular/internal/logging"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger

	completer llm.Completer
	closers   []io.Closer
}

// New loads .env (when present), the config file (empty path means
// defaults) and environment overrides, then installs the process logger.
func New(cfgPath string, logOut io.Writer) (*App, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Logging, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return &App{Config: cfg, Logger: logger, closers: []io.Closer{closer}}, nil
}

// Completer builds the configured LLM client on first use.
func (a *App) Completer(ctx context.Context) (llm.Completer, error) {
	if a.completer != nil {
		return a.completer, nil
	}
	client, err := llm.NewClient(ctx, a.Config.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if c, ok := client.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	if dir := a.Config.Logging.LLMCallDir; dir != "" {
		lc, err := llm.NewLoggingClient(client, dir)
		if err != nil {
			return nil, err
		}
		lc.Logger = a.Logger
		client = lc
	}
	a.Logger.Debug("llm client ready", "provider", a.Config.LLM.Provider, "model", a.Config.LLM.Model)
	a.completer = llm.NewCompleter(client)
	return a.completer, nil
}

func (a *App) Ingestor(ctx context.Context) (*core.Ingestor, error) {
	completer, err := a.Completer(ctx)
	if err != nil {
		return nil, err
	}
	in := core.NewIngestor(completer, a.Config)
	in.SetLogger(a.Logger)
	return in, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
