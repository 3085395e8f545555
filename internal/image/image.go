// Package image builds and pushes the workload container image, skipping the
// build when the target tag already exists in the registry.
package image

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/logging"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
	"github.com/codex-k8s/adstackctl/internal/shell"
)

// AlreadyExists is the skip reason reported when the tag is present.
const AlreadyExists = "image already exists"

// ExistenceChecker answers whether repo:tag is already in the registry.
type ExistenceChecker interface {
	ImageExists(ctx context.Context, repo, tag string) (bool, error)
}

// SecretGetter fetches a secret value at stage time.
type SecretGetter interface {
	Get(ctx context.Context, ref cloud.SecretRef) (string, error)
}

// CredentialSource yields registry login credentials.
type CredentialSource interface {
	Credentials(ctx context.Context) (cloud.RegistryCredentials, error)
}

// Spec describes one image.
type Spec struct {
	Repository string
	Tag        string
	Dockerfile string
	Context    string
	Platform   string
	BuildArgs  map[string]string
	SecretArgs []SecretArg
}

// SecretArg binds a build argument to a secret reference.
type SecretArg struct {
	Arg string
	Ref cloud.SecretRef
	// Mount passes the value as a BuildKit secret (--secret id=Arg,env=Arg)
	// instead of --build-arg, so it stays out of argv and the image history.
	Mount bool
}

// Builder is a pipeline action that converges the registry to contain the image.
type Builder struct {
	spec    Spec
	checker ExistenceChecker
	secrets SecretGetter
	creds   CredentialSource
	runner  shell.Runner
	logger  *slog.Logger
	docker  string
	env     []string
}

// NewBuilder constructs a Builder.
func NewBuilder(spec Spec, checker ExistenceChecker, secrets SecretGetter, creds CredentialSource, runner shell.Runner, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{
		spec:    spec,
		checker: checker,
		secrets: secrets,
		creds:   creds,
		runner:  runner,
		logger:  logger,
		docker:  "docker",
	}
}

// WithEnv sets KEY=VALUE pairs passed to every docker invocation.
func (b *Builder) WithEnv(env []string) *Builder {
	b.env = env
	return b
}

// Reference returns the full image reference for an account and region.
func (b *Builder) Reference(accountID, region string) string {
	return fmt.Sprintf("%s/%s:%s", cloud.Host(accountID, region), b.spec.Repository, b.spec.Tag)
}

// Run checks the registry and, when the tag is missing, logs in, builds and pushes.
func (b *Builder) Run(ctx context.Context, sc pipeline.Context) (map[string]string, error) {
	if sc.AccountID == "" || sc.Region == "" {
		return nil, fmt.Errorf("account id and region are required to address the registry")
	}
	ref := b.Reference(sc.AccountID, sc.Region)
	outputs := map[string]string{"image": ref}

	exists, err := b.checker.ImageExists(ctx, b.spec.Repository, b.spec.Tag)
	if err != nil {
		return nil, fmt.Errorf("check image %s: %w", ref, err)
	}
	if exists {
		b.logger.Info("image already exists in registry; skipping build and push", "image", ref)
		return outputs, pipeline.Skip(AlreadyExists)
	}

	buildArgs, secretEnv, secrets, err := b.resolveBuildArgs(ctx)
	if err != nil {
		return nil, err
	}

	creds, err := b.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry login: %w", err)
	}
	secrets = append(secrets, creds.Password)

	b.logger.Info("logging in to registry", "registry", creds.Host)
	if _, err := b.runner.Run(ctx, shell.Cmd{
		Name:    b.docker,
		Args:    []string{"login", "--username", creds.Username, "--password-stdin", creds.Host},
		Env:     b.env,
		Stdin:   strings.NewReader(creds.Password),
		Secrets: secrets,
	}); err != nil {
		return nil, fmt.Errorf("docker login to %s: %w", creds.Host, err)
	}

	contextDir := b.spec.Context
	if contextDir == "" {
		contextDir = "."
	}
	args := []string{"build", "-t", ref}
	if b.spec.Dockerfile != "" {
		args = append(args, "-f", b.spec.Dockerfile)
	}
	if b.spec.Platform != "" {
		args = append(args, "--platform", b.spec.Platform)
	}
	args = append(args, buildArgs...)
	args = append(args, contextDir)

	b.logger.Info("building image", "image", ref, "dockerfile", b.spec.Dockerfile, "context", contextDir)
	buildEnv := append(slices.Clone(b.env), secretEnv...)
	if _, err := b.runner.Run(ctx, shell.Cmd{Name: b.docker, Args: args, Dir: sc.Dir, Env: buildEnv, Secrets: secrets}); err != nil {
		return nil, fmt.Errorf("docker build %s: %w", ref, err)
	}

	b.logger.Info("pushing image", "image", ref)
	if _, err := b.runner.Run(ctx, shell.Cmd{Name: b.docker, Args: []string{"push", ref}, Env: b.env, Secrets: secrets}); err != nil {
		return nil, fmt.Errorf("docker push %s: %w", ref, err)
	}
	return outputs, nil
}

// resolveBuildArgs renders --build-arg and --secret flags in a stable order. It
// also returns the environment carrying mounted secrets and every secret value
// that must be masked.
func (b *Builder) resolveBuildArgs(ctx context.Context) (args, env, secrets []string, err error) {
	keys := make([]string, 0, len(b.spec.BuildArgs))
	for k := range b.spec.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+b.spec.BuildArgs[k])
	}

	for _, sa := range b.spec.SecretArgs {
		if b.secrets == nil {
			return nil, nil, nil, fmt.Errorf("build arg %s needs a secret store", sa.Arg)
		}
		value, err := b.secrets.Get(ctx, sa.Ref)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fetch secret for build arg %s: %w", sa.Arg, err)
		}
		secrets = append(secrets, value)
		if sa.Mount {
			args = append(args, "--secret", "id="+sa.Arg+",env="+sa.Arg)
			env = append(env, sa.Arg+"="+value)
			continue
		}
		args = append(args, "--build-arg", sa.Arg+"="+value)
	}
	if len(env) > 0 {
		env = append([]string{"DOCKER_BUILDKIT=1"}, env...)
	}
	return args, env, secrets, nil
}

// ResolveContext joins a relative path onto root.
func ResolveContext(root, path string) string {
	if path == "" || filepath.IsAbs(path) || root == "" {
		return path
	}
	return filepath.Join(root, path)
}
