// Package shell runs external tools (terraform, docker) with their output forwarded to slog.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/logging"
)

// Cmd describes one external command invocation.
type Cmd struct {
	// Name is the executable.
	Name string
	// Args are passed verbatim.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the process environment.
	Env []string
	// Stdin is fed to the process when non-nil.
	Stdin io.Reader
	// Capture returns stdout instead of logging it.
	Capture bool
	// Secrets are masked in logged arguments and forwarded output.
	Secrets []string
}

// String renders the command with secrets masked.
func (c Cmd) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return logging.RedactString(strings.Join(parts, " "), c.Secrets)
}

// Runner executes commands. Tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) ([]byte, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner constructs an ExecRunner that logs through logger.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ExecRunner{logger: logger}
}

// Run executes cmd and returns captured stdout when cmd.Capture is set.
func (r *ExecRunner) Run(ctx context.Context, cmd Cmd) ([]byte, error) {
	args := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = logging.RedactString(a, cmd.Secrets)
	}
	r.logger.Debug("running command", "cmd", cmd.Name, "args", args, "dir", cmd.Dir)

	ec := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	ec.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		ec.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		ec.Stdin = cmd.Stdin
	}

	stderr := logging.NewWriter(r.logger, cmd.Name, "stream", "stderr").Redact(cmd.Secrets...)
	defer stderr.Flush()
	ec.Stderr = stderr

	var stdout bytes.Buffer
	if cmd.Capture {
		ec.Stdout = &stdout
	} else {
		w := logging.NewWriter(r.logger, cmd.Name, "stream", "stdout").Redact(cmd.Secrets...)
		defer w.Flush()
		ec.Stdout = w
	}

	if err := ec.Run(); err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", cmd.Name, firstArg(args), err)
	}
	return stdout.Bytes(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// LookPath reports where name lives on PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
