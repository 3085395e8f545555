package cli

import (
	"github.com/spf13/cobra"
)

// newValidateCommand creates the "validate" subcommand that only runs the readiness check.
func newValidateCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve the load balancer and poll the sign-in page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			orch, err := newOrchestrator(cmd.Context(), cfg, tctx, logger)
			if err != nil {
				return err
			}

			report, err := orch.Validate(cmd.Context())
			publishReadiness(logger, report)
			if err != nil {
				return err
			}
			logger.Info("endpoint is ready", "endpoint", report.URL, "attempts", report.Result.Attempts)
			return nil
		},
	}

	addVarsFlags(cmd)
	return cmd
}
