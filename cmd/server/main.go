package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agenthands/intabular/internal/app"
	"github.com/agenthands/intabular/internal/server"
)

func main() {
	a, err := app.New(os.Getenv("CONFIG_PATH"), os.Stderr)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestor, err := a.Ingestor(ctx)
	if err != nil {
		a.Logger.Error("failed to build ingestor", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(ingestor, a.Config.Store, a.Logger)
	httpSrv := &http.Server{Addr: a.Config.Server.Addr, Handler: srv.SetupRouter()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("starting server", "addr", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
