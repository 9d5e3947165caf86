package commands

import (
	"bufio"
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mdrun/mdrun/pkg/dispatch"
	"github.com/mdrun/mdrun/pkg/document"
	"github.com/mdrun/mdrun/pkg/engine"
	"github.com/mdrun/mdrun/pkg/protocol"
	"github.com/mdrun/mdrun/pkg/stores"
	"github.com/mdrun/mdrun/pkg/telemetry"
	"github.com/mdrun/mdrun/pkg/vars"
)

// playbookOptions collects everything the playbook command needs to build a
// dispatcher.
type playbookOptions struct {
	inventory   string
	extraVars   []string
	checkMode   bool
	ident       string
	journalPath string
	engineCmd   []string
	runnerCmd   []string
	metrics     bool
	metricsOut  string
}

func newPlaybookCommand() *cobra.Command {
	opts := &playbookOptions{}

	cmd := &cobra.Command{
		Use:   "playbook <file>",
		Short: "Run a playbook file as markdown reconcile or legacy script",
		Long: `Execute a playbook file.

Markdown desired-state files go through the reconciliation engine; files
containing the legacy script marker go to the legacy runner. Either way the
job's progress is streamed to stdout in the controller's envelope format.

Exit codes: 0 converged, 1 not converged, 2 task failures, 3 malformed
document, 4 event encoding defect, 5 output stream failure.`,
		Example: `  # Run a desired-state playbook
  mdrun playbook site.yml -i inventory.yml

  # Pass extra variables
  mdrun playbook site.yml -e env=prod -e '@vars.yml'

  # Keep a local event journal
  mdrun playbook site.yml --journal events.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlaybook(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.inventory, "inventory", "i", "", "inventory file or directory")
	cmd.Flags().StringArrayVarP(&opts.extraVars, "extra-vars", "e", nil, "extra variables (key=value, JSON/YAML, or @file)")
	cmd.Flags().BoolVarP(&opts.checkMode, "check", "C", false, "run in check mode (dry run)")
	cmd.Flags().StringVar(&opts.ident, "ident", "1", "event stream identifier")
	cmd.Flags().StringVar(&opts.journalPath, "journal", "", "record emitted events to this SQLite file")
	cmd.Flags().StringArrayVar(&opts.engineCmd, "engine-cmd", []string{"ftl-reconcile"}, "reconciliation engine command")
	cmd.Flags().StringArrayVar(&opts.runnerCmd, "runner-cmd", []string{"ftl-runner"}, "legacy script runner command")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "collect prometheus metrics for this run")
	cmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "write collected metrics to this file (default stderr)")

	addCompatFlags(cmd)

	return cmd
}

// addCompatFlags registers ansible-playbook arguments that are accepted for
// CLI compatibility but ignored by this adapter.
func addCompatFlags(cmd *cobra.Command) {
	for flag, short := range map[string]string{
		"limit":               "l",
		"tags":                "t",
		"skip-tags":           "",
		"user":                "u",
		"forks":               "f",
		"become-user":         "",
		"become-method":       "",
		"vault-password-file": "",
		"vault-id":            "",
		"start-at-task":       "",
	} {
		var sink string
		cmd.Flags().StringVarP(&sink, flag, short, "", "")
		_ = cmd.Flags().MarkHidden(flag)
	}
	for flag, short := range map[string]string{
		"become":          "b",
		"diff":            "",
		"syntax-check":    "",
		"list-tasks":      "",
		"list-tags":       "",
		"list-hosts":      "",
		"ask-pass":        "",
		"ask-become-pass": "",
		"ask-vault-pass":  "",
	} {
		var sink bool
		cmd.Flags().BoolVarP(&sink, flag, short, false, "")
		_ = cmd.Flags().MarkHidden(flag)
	}
}

func runPlaybook(ctx context.Context, path string, opts *playbookOptions) error {
	logger := telemetry.ComponentLogger(log.Logger, "playbook")

	text, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("playbook", path).Msg("Could not read playbook file")
		return &ExitCodeError{Code: dispatch.ExitMalformedDocument, Err: err}
	}

	extraVars, err := vars.Parse(opts.extraVars)
	if err != nil {
		logger.Error().Err(err).Msg("Could not parse extra vars")
		return &ExitCodeError{Code: dispatch.ExitMalformedDocument, Err: err}
	}

	cfg := telemetry.DefaultConfig("mdrun", "dev")
	if jsonLogs {
		// The root command already rebuilt the global logger; keep the
		// validated config in agreement.
		cfg.Logging.Format = "json"
	}
	cfg.Metrics.Enabled = opts.metrics
	if traceMode != "" && traceMode != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceMode
	}
	if err := cfg.Validate(); err != nil {
		return &ExitCodeError{Code: dispatch.ExitMalformedDocument, Err: err}
	}

	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	if err != nil {
		return err
	}
	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Trace shutdown failed")
		}
	}()

	var journal dispatch.Journal
	if opts.journalPath != "" {
		j, err := stores.Open(ctx, stores.Config{Path: opts.journalPath, JobID: jobIdent(path)})
		if err != nil {
			logger.Error().Err(err).Str("journal", opts.journalPath).Msg("Could not open journal")
			return err
		}
		defer j.Close()
		journal = j
	}

	verbosity := 0
	if verbose {
		verbosity = 1
	}

	sink := bufio.NewWriter(os.Stdout)
	d := &dispatch.Dispatcher{
		Reconciler: &engine.CommandReconciler{Command: opts.engineCmd, Logger: logger},
		Scripts:    &engine.CommandScriptRunner{Command: opts.runnerCmd, Logger: logger},
		Writer:     protocol.NewWriter(sink),
		Journal:    journal,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		Ident:      opts.ident,
		Inventory:  opts.inventory,
		ExtraVars:  extraVars,
		CheckMode:  opts.checkMode,
		Verbosity:  verbosity,
	}

	code, err := d.Run(ctx, document.InputDocument{Path: path, Text: string(text)})

	if opts.metrics {
		if derr := dumpMetrics(metrics, opts.metricsOut); derr != nil {
			logger.Warn().Err(derr).Msg("Could not write metrics")
		}
	}

	if code == 0 {
		return nil
	}
	return &ExitCodeError{Code: code, Err: err}
}

// dumpMetrics writes the run's metrics in text exposition format to the
// given file, or to stderr when no path is set.
func dumpMetrics(m *telemetry.Metrics, path string) error {
	if path == "" {
		return m.WriteText(os.Stderr)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteText(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// jobIdent scopes journal rows: the controller-injected JOB_ID when present,
// the playbook path otherwise.
func jobIdent(path string) string {
	if v := os.Getenv("JOB_ID"); v != "" {
		return v
	}
	return path
}
