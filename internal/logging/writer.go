package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Redacted replaces secret values in forwarded output and logged arguments.
const Redacted = "[REDACTED]"

// Writer is an io.Writer that forwards child process output to slog line by line.
// Partial lines are buffered until a newline arrives or Flush is called.
type Writer struct {
	mu     sync.Mutex
	logger *slog.Logger
	msg    string
	attrs  []any
	redact []string
	buf    bytes.Buffer
}

// NewWriter constructs a Writer bound to the provided logger. Every line is
// logged at info level as msg with the given attrs and a "line" attribute.
func NewWriter(logger *slog.Logger, msg string, attrs ...any) *Writer {
	if msg == "" {
		msg = "command output"
	}
	return &Writer{logger: logger, msg: msg, attrs: attrs}
}

// Redact registers values that must never reach the log.
func (w *Writer) Redact(values ...string) *Writer {
	for _, v := range values {
		if v != "" {
			w.redact = append(w.redact, v)
		}
	}
	return w
}

// Write buffers p and logs every complete line.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || w.logger == nil {
		return
	}
	line = RedactString(line, w.redact)
	args := append(append([]any{}, w.attrs...), "line", line)
	w.logger.Info(w.msg, args...)
}

// RedactString replaces every occurrence of the given secrets in s.
func RedactString(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return s
}
