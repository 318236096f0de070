package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/storacha/mirror/cmd"
	"github.com/storacha/mirror/internal/cmdutil"
	"github.com/storacha/mirror/internal/output"
	"github.com/storacha/mirror/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	otelShutdown, err := telemetry.Setup(ctx, cmd.TelemetryConfig())
	if err != nil {
		output.Warning(os.Stderr, "telemetry disabled: %s", err)
		otelShutdown = func(context.Context) error { return nil }
	}
	// Handle shutdown properly so nothing leaks.
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			output.Warning(os.Stderr, "flushing telemetry: %s", err)
		}
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		var handled cmdutil.HandledCliError
		if !errors.As(err, &handled) {
			output.Error(os.Stderr, cmdutil.TranslateError(err))
		}
		return 1
	}
	return 0
}
