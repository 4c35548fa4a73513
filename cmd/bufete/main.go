package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("app stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

// Load config, build the app and serve until context is cancelled
// Graceful stop is not an error
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	cfg, err := LoadConfig(getenv, getwd, args)
	if err != nil {
		return err
	}

	srv, err := NewServerApp(ctx, cfg)
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
