package shell

import (
	"context"
	"io"
	"sync"
)

// Recorder is a fake Runner that records every command. Handler, when set,
// decides the result per command.
type Recorder struct {
	mu      sync.Mutex
	Calls   []Cmd
	Stdins  []string
	Handler func(cmd Cmd) ([]byte, error)
}

// Run records cmd and delegates to Handler.
func (r *Recorder) Run(_ context.Context, cmd Cmd) ([]byte, error) {
	var stdin string
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		stdin = string(b)
	}

	r.mu.Lock()
	r.Calls = append(r.Calls, cmd)
	r.Stdins = append(r.Stdins, stdin)
	handler := r.Handler
	r.mu.Unlock()

	if handler != nil {
		return handler(cmd)
	}
	return nil, nil
}

// Commands returns "name firstArg" for every recorded call.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Calls))
	for _, c := range r.Calls {
		line := c.Name
		if len(c.Args) > 0 {
			line += " " + c.Args[0]
		}
		out = append(out, line)
	}
	return out
}
