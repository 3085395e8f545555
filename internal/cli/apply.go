package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/adstackctl/internal/deploy"
)

// newApplyCommand creates the "apply" subcommand that converges every stage and validates the endpoint.
func newApplyCommand(opts *Options) *cobra.Command {
	var (
		skipValidate bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Deploy all stages in order and wait for the sign-in page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

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

			logger.Info("applying stack", "project", cfg.Project, "region", cfg.Region, "stages", len(cfg.Stages))
			res, err := orch.Apply(ctx, deploy.ApplyOptions{SkipValidate: skipValidate})
			logSummary(logger, res.Pipeline)
			if res.Readiness != nil {
				publishReadiness(logger, *res.Readiness)
			}
			if err != nil {
				return err
			}

			if res.Readiness != nil {
				logger.Info("stack is ready", "endpoint", res.Readiness.URL, "attempts", res.Readiness.Result.Attempts)
			} else {
				logger.Info("stack applied")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipValidate, "skip-validate", false, "Do not poll the endpoint after the pipeline succeeds")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "Overall time limit for the run")
	addVarsFlags(cmd)

	return cmd
}
