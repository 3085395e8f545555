package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codex-k8s/adstackctl/internal/logging"
)

// Resolver looks up DNS names through cloud discovery.
type Resolver interface {
	LoadBalancerDNSName(ctx context.Context, name string) (string, error)
	InstanceDNSNames(ctx context.Context, key, value string) ([]string, error)
}

// HostLookup names a directory-service host to report during validation.
type HostLookup struct {
	TagKey   string
	TagValue string
}

// Target describes what to validate.
type Target struct {
	LoadBalancer string
	Hosts        []HostLookup
	MaxAttempts  int
	Interval     time.Duration
	Timeout      time.Duration
}

// Report summarises a validation run.
type Report struct {
	LoadBalancerDNS string
	URL             string
	// HostDNS maps "key=value" lookups to the names found; empty lookups are absent.
	HostDNS map[string][]string
	Result  Result
}

// Validator resolves the endpoint and polls it.
type Validator struct {
	resolver Resolver
	poller   *Poller
	logger   *slog.Logger
}

// NewValidator constructs a Validator.
func NewValidator(resolver Resolver, poller *Poller, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Validator{resolver: resolver, poller: poller, logger: logger}
}

// Validate resolves the load balancer, reports directory hosts and polls the
// sign-in page. A resolution failure aborts before any probe is sent; host
// lookups only ever warn.
func (v *Validator) Validate(ctx context.Context, target Target) (Report, error) {
	var report Report

	dns, err := v.resolver.LoadBalancerDNSName(ctx, target.LoadBalancer)
	if err != nil {
		return report, fmt.Errorf("%w: %q: %v", ErrUnresolved, target.LoadBalancer, err)
	}
	dns = strings.TrimSpace(dns)
	if dns == "" || dns == "None" {
		return report, fmt.Errorf("%w: %q has no DNS name", ErrUnresolved, target.LoadBalancer)
	}
	report.LoadBalancerDNS = dns
	v.logger.Info("load balancer resolved", "name", target.LoadBalancer, "dns", dns)

	report.HostDNS = make(map[string][]string)
	for _, h := range target.Hosts {
		label := h.TagKey + "=" + h.TagValue
		names, err := v.resolver.InstanceDNSNames(ctx, h.TagKey, h.TagValue)
		switch {
		case err != nil:
			v.logger.Warn("directory host lookup failed", "tag", label, "error", err)
		case len(names) == 0:
			v.logger.Warn("no running directory host found", "tag", label)
		default:
			report.HostDNS[label] = names
			v.logger.Info("directory host", "tag", label, "dns", strings.Join(names, ","))
		}
	}

	report.URL = "http://" + dns + HealthPath
	res, err := v.poller.Poll(ctx, Probe{
		URL:            report.URL,
		ExpectedStatus: ExpectedStatus,
		MaxAttempts:    target.MaxAttempts,
		Interval:       target.Interval,
		Timeout:        target.Timeout,
	})
	report.Result = res
	return report, err
}
