// Main package for the exalsius node agent.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/exalsius/node-agent/cmd/node-agent/commands"
	"github.com/exalsius/node-agent/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rc := run(ctx, a)
	stop()
	os.Exit(rc)
}

type app interface {
	Run(ctx context.Context) error
	UsageError() bool
}

func run(ctx context.Context, a app) int {
	if err := a.Run(ctx); err != nil {
		slog.Error(err.Error())

		if a.UsageError() {
			return 2
		}
		return 1
	}

	return 0
}
