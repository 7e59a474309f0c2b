// Package commands implements the leapshard CLI commands.
package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapshard/internal/cli/config"
)

type envKey struct{}

// Env carries the loaded configuration and logger between the root
// command and subcommands.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
}

// WithEnv stores the command environment on the context.
func WithEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, envKey{}, &Env{Config: cfg, Logger: logger})
}

// envFrom retrieves the command environment. Commands run through the
// root command always have one; a bare Env keeps tests simple.
func envFrom(ctx context.Context) *Env {
	if e, ok := ctx.Value(envKey{}).(*Env); ok {
		return e
	}
	return &Env{Config: &config.Config{}, Logger: slog.New(slog.DiscardHandler)}
}
