package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSplitsLinesAndRedacts(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	w := NewWriter(logger, "terraform", "stage", "domain-servers").Redact("s3cr3t")
	_, err := w.Write([]byte("first line\nsecond s3cr3t"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "line=\"first line\"")
	assert.NotContains(t, out.String(), "second")

	w.Flush()
	assert.Contains(t, out.String(), "second "+Redacted)
	assert.NotContains(t, out.String(), "s3cr3t")
	assert.Contains(t, out.String(), "stage=domain-servers")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("nope"))
	assert.Equal(t, "warn", LevelWarn.String())
}
