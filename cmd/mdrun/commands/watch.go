package commands

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mdrun/mdrun/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	opts := &playbookOptions{}

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-run a playbook whenever the file changes",
		Long: `Watch a playbook file and re-run it on every change.

Authoring aid for desired-state documents: edit the markdown, save, and see
the reconcile outcome without re-invoking the command. Exit codes of the
individual runs are logged, not returned; the command runs until
interrupted.`,
		Example: `  mdrun watch site.yml -i inventory.yml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.inventory, "inventory", "i", "", "inventory file or directory")
	cmd.Flags().StringArrayVarP(&opts.extraVars, "extra-vars", "e", nil, "extra variables (key=value, JSON/YAML, or @file)")
	cmd.Flags().StringVar(&opts.ident, "ident", "1", "event stream identifier")
	cmd.Flags().StringVar(&opts.journalPath, "journal", "", "record emitted events to this SQLite file")
	cmd.Flags().StringArrayVar(&opts.engineCmd, "engine-cmd", []string{"ftl-reconcile"}, "reconciliation engine command")
	cmd.Flags().StringArrayVar(&opts.runnerCmd, "runner-cmd", []string{"ftl-runner"}, "legacy script runner command")

	return cmd
}

func runWatch(ctx context.Context, path string, opts *playbookOptions) error {
	logger := telemetry.ComponentLogger(log.Logger, "watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	logger.Info().Str("playbook", path).Msg("Watching playbook")

	runOnce := func() {
		err := runPlaybook(ctx, path, opts)
		var exitErr *ExitCodeError
		switch {
		case err == nil:
			logger.Info().Str("playbook", path).Msg("Run converged")
		case errors.As(err, &exitErr):
			logger.Warn().Int("exit_code", exitErr.Code).Err(exitErr.Err).Msg("Run did not converge")
		default:
			logger.Error().Err(err).Msg("Run failed")
		}
	}

	runOnce()

	// Editors fire bursts of write events; debounce before re-running.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Playbook changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			runOnce()
			// Some editors replace the file; re-arm the watch.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Watch error")
		}
	}
}
