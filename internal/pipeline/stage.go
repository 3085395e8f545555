// Package pipeline runs an ordered list of stages, one at a time, stopping at the
// first mandatory failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"
)

// Operation is the direction a stage drives its bundle.
type Operation string

const (
	// OperationApply converges the bundle to its declared state.
	OperationApply Operation = "apply"
	// OperationDestroy tears the bundle down.
	OperationDestroy Operation = "destroy"
)

// Severity classifies how a stage failure affects the run.
type Severity int

const (
	// SeverityNone marks results without a failure.
	SeverityNone Severity = iota
	// SeverityWarning failures are logged and the run continues.
	SeverityWarning
	// SeverityFatal failures abort the run.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Status is the terminal state of a stage.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusWarned    Status = "warned"
	StatusFailed    Status = "failed"
)

// Context carries the values threaded between stages. Each stage receives its
// own copy; mutations never leak into other stages.
type Context struct {
	AccountID string
	Region    string
	// Dir is the working directory of the current stage.
	Dir string
	// Outputs holds "<stage>.<key>" values produced by earlier stages.
	Outputs map[string]string
}

// Output returns the value a previous stage published under key.
func (c Context) Output(stage, key string) (string, bool) {
	v, ok := c.Outputs[stage+"."+key]
	return v, ok
}

func (c Context) clone() Context {
	c.Outputs = maps.Clone(c.Outputs)
	if c.Outputs == nil {
		c.Outputs = make(map[string]string)
	}
	return c
}

// Action is the work a stage performs. Returned outputs are published to later stages.
type Action interface {
	Run(ctx context.Context, sc Context) (map[string]string, error)
}

// Initializer is implemented by actions that need an idempotent setup step
// before Run, such as terraform init.
type Initializer interface {
	Init(ctx context.Context, sc Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, sc Context) (map[string]string, error)

// Run calls f.
func (f ActionFunc) Run(ctx context.Context, sc Context) (map[string]string, error) {
	return f(ctx, sc)
}

// Stage is one unit of the pipeline.
type Stage struct {
	Name      string
	Dir       string
	Operation Operation
	DependsOn []string
	// BestEffort stages downgrade failures to warnings.
	BestEffort bool
	// Timeout bounds Init and Run together; zero means no limit.
	Timeout time.Duration
	Action  Action
}

// StageResult records how a stage finished.
type StageResult struct {
	Stage    string
	Status   Status
	Severity Severity
	Duration time.Duration
	// Reason explains a skip.
	Reason string
	Err    error
}

// Report is the outcome of a run, in execution order.
type Report struct {
	Results []StageResult
}

// Failed returns the fatal result, if any.
func (r Report) Failed() (StageResult, bool) {
	for _, res := range r.Results {
		if res.Severity == SeverityFatal {
			return res, true
		}
	}
	return StageResult{}, false
}

// Warnings returns results that failed on a best-effort stage.
func (r Report) Warnings() []StageResult {
	var out []StageResult
	for _, res := range r.Results {
		if res.Severity == SeverityWarning {
			out = append(out, res)
		}
	}
	return out
}

// StageError reports which stage aborted the run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SkipError marks a stage as intentionally not executed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "skipped: " + e.Reason }

// Skip returns an error that makes the runner record the stage as skipped.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// IsSkip reports whether err is a skip marker.
func IsSkip(err error) (string, bool) {
	var s *SkipError
	if errors.As(err, &s) {
		return s.Reason, true
	}
	return "", false
}

// Validate checks that stages form a total order respecting their dependencies:
// names are unique and every dependency appears earlier in the list.
func Validate(stages []Stage) error {
	seen := make(map[string]struct{}, len(stages))
	for i, st := range stages {
		if st.Name == "" {
			return fmt.Errorf("stage at position %d has no name", i)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("duplicate stage %q", st.Name)
		}
		if st.Action == nil {
			return fmt.Errorf("stage %q has no action", st.Name)
		}
		for _, dep := range st.DependsOn {
			if dep == st.Name {
				return fmt.Errorf("stage %q depends on itself", st.Name)
			}
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("stage %q depends on %q, which does not run before it", st.Name, dep)
			}
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}
