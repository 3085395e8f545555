package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

// errDestroyNotConfirmed is returned when destroy runs without --yes.
var errDestroyNotConfirmed = errors.New("destroy is irreversible; re-run with --yes to confirm")

// newDestroyCommand creates the "destroy" subcommand that tears the stack down in reverse order.
func newDestroyCommand(opts *Options) *cobra.Command {
	var (
		yes     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down all stages in reverse order and delete registry repositories and secrets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			if !yes {
				return errDestroyNotConfirmed
			}

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			orch, err := newOrchestrator(ctx, cfg, tctx, logger)
			if err != nil {
				return err
			}

			logger.Warn("destroying stack", "project", cfg.Project, "region", cfg.Region)
			res, err := orch.Destroy(ctx)
			logSummary(logger, res.Pipeline)
			if err != nil {
				return err
			}

			logger.Info("stack destroyed", "warnings", len(res.Pipeline.Warnings()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm irreversible deletion")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "Overall time limit for the run")
	addVarsFlags(cmd)

	return cmd
}
