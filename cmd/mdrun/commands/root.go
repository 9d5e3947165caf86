// Package commands wires the mdrun CLI: an ansible-playbook compatible
// front end that runs markdown desired-state files through the external
// reconciliation engine and legacy scripts through the legacy runner, while
// emitting the controller's streamed event format on stdout.
package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mdrun/mdrun/pkg/telemetry"
)

var (
	// Global flags
	verbose   bool
	jsonLogs  bool
	traceMode string
)

// ExitCodeError carries a specific process exit code out of a command.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "exit code " + strconv.Itoa(e.Code)
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mdrun",
		Short: "mdrun - run markdown desired-state files as controller jobs",
		Long: `mdrun is an ansible-playbook drop-in for AWX-style controllers.

It classifies a playbook file as either a markdown desired-state document or
a legacy imperative script, runs it through the matching execution path, and
streams the structured events the controller's live log UI expects.

File convention:
  - line 1: a header such as "hosts: all" (satisfies playbook discovery)
  - a line containing only "---"
  - everything after "---" is the desired state (markdown)

Files containing "async def run(" are legacy scripts and go to the legacy
runner untouched.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Rebuild the global logger now that flags are parsed; main
			// installed a plain console bootstrap logger before this.
			cfg := telemetry.LoggingConfig{
				Level:  os.Getenv("LOG_LEVEL"),
				Format: "console",
			}
			if jsonLogs {
				cfg.Format = "json"
			}
			logger, err := telemetry.NewLogger(cfg)
			if err != nil {
				return err
			}
			log.Logger = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose event output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&traceMode, "trace", "none", "trace exporter (otlp, stdout, none)")

	rootCmd.AddCommand(newPlaybookCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
