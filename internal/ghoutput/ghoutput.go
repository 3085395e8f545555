// Package ghoutput publishes step outputs for GitHub Actions.
package ghoutput

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// EnvVar names the file GitHub Actions reads step outputs from.
const EnvVar = "GITHUB_OUTPUT"

// Write appends values to the GITHUB_OUTPUT file. It is a no-op outside Actions.
func Write(values map[string]string) error {
	path := strings.TrimSpace(os.Getenv(EnvVar))
	if path == "" || len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", EnvVar, err)
	}
	defer func() { _ = f.Close() }()

	return WriteTo(f, values)
}

// WriteTo renders values in the GITHUB_OUTPUT format, sorted by key. Single-line
// values use key=value; multi-line values use a heredoc delimiter.
func WriteTo(w io.Writer, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		if !strings.ContainsAny(value, "\r\n") {
			if _, err := fmt.Fprintf(w, "%s=%s\n", key, value); err != nil {
				return err
			}
			continue
		}
		delim, err := delimiter(value)
		if err != nil {
			return err
		}
		value = strings.ReplaceAll(value, "\r\n", "\n")
		if _, err := fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", key, delim, value, delim); err != nil {
			return err
		}
	}
	return nil
}

// delimiter returns a random heredoc marker that does not occur in value.
func delimiter(value string) (string, error) {
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate output delimiter: %w", err)
		}
		d := "ghadelimiter_" + hex.EncodeToString(buf)
		if !strings.Contains(value, d) {
			return d, nil
		}
	}
}
