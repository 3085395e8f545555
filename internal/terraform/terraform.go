// Package terraform drives one terraform root module (a declarative resource bundle).
package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/shell"
)

// Client wraps terraform execution for a single working directory.
type Client struct {
	Binary string
	Dir    string
	Env    []string
	runner shell.Runner
}

// NewClient constructs a terraform client for dir.
func NewClient(runner shell.Runner, binary, dir string, env []string) *Client {
	if binary == "" {
		binary = "terraform"
	}
	return &Client{Binary: binary, Dir: dir, Env: env, runner: runner}
}

// Init runs terraform init. It is safe to repeat.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.run(ctx, false, "init", "-input=false", "-no-color")
	return err
}

// Apply converges the bundle to its declared state.
func (c *Client) Apply(ctx context.Context, vars map[string]string) error {
	args := append([]string{"apply", "-auto-approve", "-input=false", "-no-color"}, varArgs(vars)...)
	_, err := c.run(ctx, false, args...)
	return err
}

// Destroy tears the bundle down.
func (c *Client) Destroy(ctx context.Context, vars map[string]string) error {
	args := append([]string{"destroy", "-auto-approve", "-input=false", "-no-color"}, varArgs(vars)...)
	_, err := c.run(ctx, false, args...)
	return err
}

// Output returns root module outputs flattened to strings. Scalars keep their
// natural form; lists and maps are JSON encoded.
func (c *Client) Output(ctx context.Context) (map[string]string, error) {
	raw, err := c.run(ctx, true, "output", "-json", "-no-color")
	if err != nil {
		return nil, err
	}
	return ParseOutputs(raw)
}

type outputValue struct {
	Sensitive bool            `json:"sensitive"`
	Value     json.RawMessage `json:"value"`
}

// ParseOutputs decodes `terraform output -json`. Sensitive outputs are dropped.
func ParseOutputs(raw []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}

	var decoded map[string]outputValue
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode terraform outputs: %w", err)
	}
	for name, v := range decoded {
		if v.Sensitive {
			continue
		}
		var s string
		if err := json.Unmarshal(v.Value, &s); err == nil {
			out[name] = s
			continue
		}
		out[name] = strings.TrimSpace(string(v.Value))
	}
	return out, nil
}

func (c *Client) run(ctx context.Context, capture bool, args ...string) ([]byte, error) {
	out, err := c.runner.Run(ctx, shell.Cmd{
		Name:    c.Binary,
		Args:    args,
		Dir:     c.Dir,
		Env:     append([]string{"TF_IN_AUTOMATION=1"}, c.Env...),
		Capture: capture,
	})
	if err != nil {
		return nil, fmt.Errorf("terraform %s in %s: %w", args[0], c.Dir, err)
	}
	return out, nil
}

// varArgs renders vars as sorted -var flags so invocations are reproducible.
func varArgs(vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "-var", k+"="+vars[k])
	}
	return args
}
