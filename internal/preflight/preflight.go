// Package preflight verifies tools and credentials before any stage touches
// external state.
package preflight

import (
	"context"
	"log/slog"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/env"
	"github.com/codex-k8s/adstackctl/internal/logging"
	"github.com/codex-k8s/adstackctl/internal/shell"
)

// IdentityProvider verifies cloud credentials.
type IdentityProvider interface {
	CallerIdentity(ctx context.Context) (cloud.CallerIdentity, error)
}

// Requirements lists what must be present.
type Requirements struct {
	Tools         []string
	OptionalTools []string
	Env           []string
	// CheckIdentity verifies credentials via the identity provider.
	CheckIdentity bool
	// ExpectedAccount, when set, must match the caller account.
	ExpectedAccount string
}

// Check is the outcome of one precondition.
type Check struct {
	Name     string
	Passed   bool
	Required bool
	Detail   string
}

// Report is the aggregate preflight outcome.
type Report struct {
	Passed    bool
	AccountID string
	Checks    []Check
}

// Missing returns the names of failed required checks.
func (r Report) Missing() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Required && !c.Passed {
			out = append(out, c.Name)
		}
	}
	return out
}

// Checker runs preflight checks.
type Checker struct {
	lookPath func(string) (string, error)
	vars     env.Vars
	identity IdentityProvider
	logger   *slog.Logger
}

// NewChecker constructs a Checker. vars is the merged environment to inspect.
func NewChecker(identity IdentityProvider, vars env.Vars, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checker{lookPath: shell.LookPath, vars: vars, identity: identity, logger: logger}
}

// WithLookPath replaces the PATH lookup used for tool checks.
func (c *Checker) WithLookPath(fn func(string) (string, error)) *Checker {
	if fn != nil {
		c.lookPath = fn
	}
	return c
}

// Run evaluates every requirement and never stops early, so the operator sees
// all problems at once.
func (c *Checker) Run(ctx context.Context, req Requirements) Report {
	report := Report{Passed: true}
	record := func(check Check) {
		report.Checks = append(report.Checks, check)
		switch {
		case check.Passed:
			c.logger.Info("preflight check ok", "check", check.Name)
		case check.Required:
			report.Passed = false
			c.logger.Error("preflight check failed", "check", check.Name, "detail", check.Detail)
		default:
			c.logger.Warn("optional preflight check failed", "check", check.Name, "detail", check.Detail)
		}
	}

	for _, tool := range req.Tools {
		record(c.tool(tool, true))
	}
	for _, tool := range req.OptionalTools {
		record(c.tool(tool, false))
	}
	for _, key := range req.Env {
		check := Check{Name: "env " + key, Required: true, Passed: true}
		if missing := c.vars.Missing(key); len(missing) > 0 {
			check.Passed = false
			check.Detail = "environment variable is not set"
		}
		record(check)
	}

	if req.CheckIdentity {
		check := Check{Name: "cloud credentials", Required: true}
		switch {
		case c.identity == nil:
			check.Detail = "no identity provider configured"
		default:
			id, err := c.identity.CallerIdentity(ctx)
			switch {
			case err != nil:
				check.Detail = err.Error()
			case req.ExpectedAccount != "" && id.AccountID != req.ExpectedAccount:
				check.Detail = "credentials belong to account " + id.AccountID + ", expected " + req.ExpectedAccount
			default:
				check.Passed = true
				report.AccountID = id.AccountID
				c.logger.Debug("caller identity", "account", id.AccountID, "arn", id.ARN)
			}
		}
		record(check)
	}

	return report
}

func (c *Checker) tool(name string, required bool) Check {
	check := Check{Name: "tool " + name, Required: required}
	path, err := c.lookPath(strings.TrimSpace(name))
	if err != nil {
		check.Detail = "not found in PATH"
		return check
	}
	check.Passed = true
	check.Detail = path
	return check
}
