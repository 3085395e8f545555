package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codex-k8s/adstackctl/internal/logging"
)

// Runner executes stages strictly in sequence.
type Runner struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{logger: logger, now: time.Now}
}

// Run validates stages and executes them in order. The first mandatory failure
// stops the run and is returned as *StageError; stages after it never start.
// Best-effort failures are logged as warnings and do not affect the error.
func (r *Runner) Run(ctx context.Context, stages []Stage, base Context) (Report, error) {
	var report Report
	if err := Validate(stages); err != nil {
		return report, fmt.Errorf("invalid pipeline: %w", err)
	}

	shared := base.clone()
	failed := make(map[string]struct{})

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return report, &StageError{Stage: st.Name, Err: err}
		}
		for _, dep := range st.DependsOn {
			if _, bad := failed[dep]; bad {
				// A best-effort predecessor failed; mandatory ones already aborted.
				r.logger.Warn("predecessor finished with warnings", "stage", st.Name, "dependency", dep)
			}
		}

		r.logger.Info("stage started",
			"stage", st.Name,
			"operation", st.Operation,
			"position", fmt.Sprintf("%d/%d", i+1, len(stages)),
		)

		sc := shared.clone()
		sc.Dir = st.Dir

		start := r.now()
		outputs, err := r.runStage(ctx, st, sc)
		res := StageResult{Stage: st.Name, Duration: r.now().Sub(start)}

		if reason, ok := IsSkip(err); ok {
			// A skipped stage is already converged and may still publish outputs.
			for k, v := range outputs {
				shared.Outputs[st.Name+"."+k] = v
			}
			res.Status = StatusSkipped
			res.Reason = reason
			report.Results = append(report.Results, res)
			r.logger.Info("stage skipped", "stage", st.Name, "reason", reason)
			continue
		}

		if err != nil {
			res.Err = err
			if st.BestEffort {
				res.Status = StatusWarned
				res.Severity = SeverityWarning
				report.Results = append(report.Results, res)
				failed[st.Name] = struct{}{}
				r.logger.Warn("best-effort stage failed; continuing", "stage", st.Name, "error", err)
				continue
			}
			res.Status = StatusFailed
			res.Severity = SeverityFatal
			report.Results = append(report.Results, res)
			r.logger.Error("stage failed; aborting pipeline", "stage", st.Name, "duration", res.Duration, "error", err)
			return report, &StageError{Stage: st.Name, Err: err}
		}

		for k, v := range outputs {
			shared.Outputs[st.Name+"."+k] = v
		}
		res.Status = StatusSucceeded
		report.Results = append(report.Results, res)
		r.logger.Info("stage completed", "stage", st.Name, "duration", res.Duration.Round(time.Millisecond))
	}

	return report, nil
}

func (r *Runner) runStage(ctx context.Context, st Stage, sc Context) (map[string]string, error) {
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	if initializer, ok := st.Action.(Initializer); ok {
		if err := initializer.Init(ctx, sc); err != nil {
			if _, skip := IsSkip(err); skip {
				return nil, err
			}
			return nil, fmt.Errorf("init: %w", err)
		}
	}

	outputs, err := st.Action.Run(ctx, sc)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && st.Timeout > 0 {
		return nil, fmt.Errorf("timed out after %s: %w", st.Timeout, err)
	}
	return outputs, err
}
