package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/adstackctl/internal/deploy"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
)

// newPlanCommand creates the "plan" subcommand that prints the stage order without touching AWS.
func newPlanCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "plan [apply|destroy]",
		Short:     "Print the ordered stages for apply or destroy",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pipeline.OperationApply), string(pipeline.OperationDestroy)},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())

			op := pipeline.OperationApply
			if len(args) == 1 {
				op = pipeline.Operation(args[0])
			}

			cfg, tctx, err := loadDeployConfigFromCmd(opts, cmd)
			if err != nil {
				return err
			}

			orch := deploy.New(cfg, tctx.EnvMap, deploy.Deps{}, logger)
			var stages []pipeline.Stage
			if op == pipeline.OperationDestroy {
				stages, err = orch.PlanDestroy()
			} else {
				stages, err = orch.PlanApply()
			}
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), stages)
		},
	}

	addVarsFlags(cmd)
	return cmd
}

func printPlan(w io.Writer, stages []pipeline.Stage) error {
	for i, st := range stages {
		line := fmt.Sprintf("%d. %s [%s]", i+1, st.Name, st.Operation)
		if st.Dir != "" {
			line += " dir=" + st.Dir
		}
		if len(st.DependsOn) > 0 {
			line += " after=" + strings.Join(st.DependsOn, ",")
		}
		if st.BestEffort {
			line += " best-effort"
		}
		if st.Timeout > 0 {
			line += " timeout=" + st.Timeout.String()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
