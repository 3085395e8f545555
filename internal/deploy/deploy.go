// Package deploy turns deploy.yaml into stage pipelines and runs them with
// preflight gating and post-deploy readiness validation.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/config"
	"github.com/codex-k8s/adstackctl/internal/env"
	"github.com/codex-k8s/adstackctl/internal/image"
	"github.com/codex-k8s/adstackctl/internal/logging"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
	"github.com/codex-k8s/adstackctl/internal/preflight"
	"github.com/codex-k8s/adstackctl/internal/readiness"
	"github.com/codex-k8s/adstackctl/internal/shell"
)

// ErrPreflightFailed is returned when a required precondition is missing. No
// stage has run when it is returned.
var ErrPreflightFailed = errors.New("preflight checks failed")

// SecretStore reads image build secrets and deletes cleanup secrets.
type SecretStore interface {
	Get(ctx context.Context, ref cloud.SecretRef) (string, error)
	Delete(ctx context.Context, id string) error
}

// Registry is the container registry used by the image stage and destroy cleanup.
type Registry interface {
	image.ExistenceChecker
	image.CredentialSource
	DeleteRepository(ctx context.Context, repo string, force bool) error
}

// Deps are the external collaborators. Production wiring uses cloud.Clients and
// shell.ExecRunner; tests pass fakes.
type Deps struct {
	Shell    shell.Runner
	Secrets  SecretStore
	Registry Registry
	// ImageChecker overrides the existence check selected by image.existsCheck.
	ImageChecker image.ExistenceChecker
	Resolver     readiness.Resolver
	Identity     preflight.IdentityProvider
	Prober       readiness.Prober
	// LookPath overrides the PATH lookup used by preflight.
	LookPath func(string) (string, error)
}

// Result aggregates what a command did.
type Result struct {
	Preflight preflight.Report
	Pipeline  pipeline.Report
	// Readiness is nil when validation did not run.
	Readiness *readiness.Report
}

// ApplyOptions tune Apply.
type ApplyOptions struct {
	SkipValidate bool
}

// Orchestrator runs deploy.yaml plans.
type Orchestrator struct {
	cfg    *config.DeployConfig
	vars   env.Vars
	deps   Deps
	logger *slog.Logger
	runner *pipeline.Runner
}

// New constructs an Orchestrator. vars is the merged environment: preflight
// checks it and every terraform and docker invocation receives it.
func New(cfg *config.DeployConfig, vars env.Vars, deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		cfg:    cfg,
		vars:   vars,
		deps:   deps,
		logger: logger,
		runner: pipeline.NewRunner(logger),
	}
}

// Requirements returns the preflight requirements for op.
func (o *Orchestrator) Requirements(op pipeline.Operation) preflight.Requirements {
	req := preflight.Requirements{
		Tools:           []string{o.cfg.Terraform.Binary},
		OptionalTools:   o.cfg.Preflight.OptionalTools,
		Env:             o.cfg.Preflight.RequiredEnv,
		CheckIdentity:   true,
		ExpectedAccount: o.cfg.AccountID,
	}
	if _, ok := o.cfg.ImageStage(); ok && op == pipeline.OperationApply {
		req.Tools = append(req.Tools, "docker")
	}
	return req
}

// Preflight checks the requirements for op and returns ErrPreflightFailed when
// any required check fails.
func (o *Orchestrator) Preflight(ctx context.Context, op pipeline.Operation) (preflight.Report, error) {
	checker := preflight.NewChecker(o.deps.Identity, o.vars, o.logger).WithLookPath(o.deps.LookPath)
	report := checker.Run(ctx, o.Requirements(op))
	if !report.Passed {
		return report, fmt.Errorf("%w: %s", ErrPreflightFailed, strings.Join(report.Missing(), ", "))
	}
	return report, nil
}

// Apply runs preflight, the apply pipeline and, unless skipped, readiness validation.
func (o *Orchestrator) Apply(ctx context.Context, opts ApplyOptions) (Result, error) {
	var res Result

	pf, err := o.Preflight(ctx, pipeline.OperationApply)
	res.Preflight = pf
	if err != nil {
		return res, err
	}

	stages, err := o.PlanApply()
	if err != nil {
		return res, err
	}
	res.Pipeline, err = o.runner.Run(ctx, stages, o.baseContext(pf))
	if err != nil {
		return res, err
	}

	if opts.SkipValidate {
		o.logger.Info("readiness validation skipped")
		return res, nil
	}
	rr, err := o.Validate(ctx)
	res.Readiness = &rr
	return res, err
}

// Destroy runs preflight and the destroy pipeline.
func (o *Orchestrator) Destroy(ctx context.Context) (Result, error) {
	var res Result

	pf, err := o.Preflight(ctx, pipeline.OperationDestroy)
	res.Preflight = pf
	if err != nil {
		return res, err
	}

	stages, err := o.PlanDestroy()
	if err != nil {
		return res, err
	}
	res.Pipeline, err = o.runner.Run(ctx, stages, o.baseContext(pf))
	if err == nil {
		if warned := res.Pipeline.Warnings(); len(warned) > 0 {
			o.logger.Warn("destroy finished with warnings", "stages", len(warned))
		}
	}
	return res, err
}

// Validate resolves the load balancer and polls the sign-in endpoint.
func (o *Orchestrator) Validate(ctx context.Context) (readiness.Report, error) {
	if o.deps.Resolver == nil {
		return readiness.Report{}, errors.New("readiness validation needs a resolver")
	}
	rs := o.cfg.Readiness
	target := readiness.Target{
		LoadBalancer: rs.LoadBalancer,
		MaxAttempts:  rs.MaxAttempts,
		Interval:     rs.IntervalDuration(),
		Timeout:      rs.TimeoutDuration(),
	}
	for _, h := range o.cfg.Directory.Hosts {
		target.Hosts = append(target.Hosts, readiness.HostLookup{TagKey: h.Key, TagValue: h.Value})
	}

	poller := readiness.NewPoller(o.deps.Prober, o.logger)
	return readiness.NewValidator(o.deps.Resolver, poller, o.logger).Validate(ctx, target)
}

func (o *Orchestrator) baseContext(pf preflight.Report) pipeline.Context {
	account := o.cfg.AccountID
	if account == "" {
		account = pf.AccountID
	}
	return pipeline.Context{AccountID: account, Region: o.cfg.Region}
}
