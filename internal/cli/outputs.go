package cli

import (
	"log/slog"
	"strings"
	"time"

	"github.com/codex-k8s/adstackctl/internal/ghoutput"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
	"github.com/codex-k8s/adstackctl/internal/readiness"
)

// publishReadiness writes the endpoint to GITHUB_OUTPUT when running in Actions.
func publishReadiness(logger *slog.Logger, report readiness.Report) {
	if report.URL == "" {
		return
	}
	values := map[string]string{
		"endpoint": report.URL,
		"lb_dns":   report.LoadBalancerDNS,
	}
	var hosts []string
	for _, names := range report.HostDNS {
		hosts = append(hosts, names...)
	}
	if len(hosts) > 0 {
		values["directory_hosts"] = strings.Join(hosts, "\n")
	}
	if err := ghoutput.Write(values); err != nil {
		logger.Warn("failed to write GitHub outputs", "error", err)
	}
}

// logSummary prints one line per stage result.
func logSummary(logger *slog.Logger, report pipeline.Report) {
	for _, res := range report.Results {
		attrs := []any{"stage", res.Stage, "status", res.Status, "duration", res.Duration.Round(time.Millisecond)}
		switch res.Status {
		case pipeline.StatusWarned:
			logger.Warn("stage summary", append(attrs, "error", res.Err)...)
		case pipeline.StatusSkipped:
			logger.Info("stage summary", append(attrs, "reason", res.Reason)...)
		default:
			logger.Info("stage summary", attrs...)
		}
	}
}
