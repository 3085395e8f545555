package shell

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdStringMasksSecrets(t *testing.T) {
	cmd := Cmd{Name: "docker", Args: []string{"build", "--build-arg", "PASSWORD=hunter2"}, Secrets: []string{"hunter2"}}
	assert.Equal(t, "docker build --build-arg PASSWORD=[REDACTED]", cmd.String())
}

func TestExecRunnerCapturesAndForwards(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var logs bytes.Buffer
	r := NewExecRunner(slog.New(slog.NewTextHandler(&logs, nil)))

	out, err := r.Run(context.Background(), Cmd{
		Name:    "sh",
		Args:    []string{"-c", "echo captured; echo 'leak hunter2' 1>&2"},
		Capture: true,
		Secrets: []string{"hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "captured\n", string(out))
	assert.Contains(t, logs.String(), "leak [REDACTED]")
	assert.NotContains(t, logs.String(), "hunter2")

	_, err = r.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.Error(t, err)
}
