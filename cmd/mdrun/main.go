package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mdrun/mdrun/cmd/mdrun/commands"
	"github.com/mdrun/mdrun/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		var exitErr *commands.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

// setupLogging installs the bootstrap logger before any command runs. Logs
// go to stderr: stdout is reserved for the controller's event stream. The
// root command rebuilds this once flags (--json-logs) are parsed.
func setupLogging() {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level: os.Getenv("LOG_LEVEL"),
	})
	if err != nil {
		logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger
}
