package cli

import (
	"context"
	"log/slog"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/config"
	"github.com/codex-k8s/adstackctl/internal/deploy"
	"github.com/codex-k8s/adstackctl/internal/readiness"
	"github.com/codex-k8s/adstackctl/internal/shell"
)

// newOrchestrator wires the AWS clients, the command runner and the HTTP
// prober into a deploy.Orchestrator for cfg.
func newOrchestrator(ctx context.Context, cfg *config.DeployConfig, tctx config.TemplateContext, logger *slog.Logger) (*deploy.Orchestrator, error) {
	awsCfg, err := cloud.LoadConfig(ctx, cfg.Region, tctx.EnvMap)
	if err != nil {
		return nil, err
	}
	clients := cloud.NewClients(awsCfg, cloud.WithLogger(logger))

	deps := deploy.Deps{
		Shell:    shell.NewExecRunner(logger),
		Secrets:  clients.Secrets,
		Registry: clients.Registry,
		Resolver: clients.Discovery,
		Identity: clients.Identity,
		Prober:   readiness.HTTPProber{},
	}
	return deploy.New(cfg, tctx.EnvMap, deps, logger), nil
}
