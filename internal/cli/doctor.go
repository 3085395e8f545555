package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/adstackctl/internal/pipeline"
)

// newDoctorCommand creates the "doctor" subcommand that runs preflight checks only.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run environment preflight checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			orch, err := newOrchestrator(ctx, cfg, tctx, logger)
			if err != nil {
				return err
			}

			report, err := orch.Preflight(ctx, pipeline.OperationApply)
			if err != nil {
				return err
			}

			logger.Info("doctor checks completed successfully", "account", report.AccountID, "checks", len(report.Checks))
			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}
