package image

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
	"github.com/codex-k8s/adstackctl/internal/shell"
)

type fakeChecker struct {
	exists bool
	err    error
	seen   []string
}

func (f *fakeChecker) ImageExists(_ context.Context, repo, tag string) (bool, error) {
	f.seen = append(f.seen, repo+":"+tag)
	return f.exists, f.err
}

type fakeSecrets map[string]string

func (f fakeSecrets) Get(_ context.Context, ref cloud.SecretRef) (string, error) {
	v, ok := f[ref.ID+"#"+ref.Key]
	if !ok {
		return "", cloud.ErrSecretNotFound
	}
	return v, nil
}

type fakeCreds struct{}

func (fakeCreds) Credentials(context.Context) (cloud.RegistryCredentials, error) {
	return cloud.RegistryCredentials{Host: "123456789012.dkr.ecr.us-east-1.amazonaws.com", Username: "AWS", Password: "token-xyz"}, nil
}

var stageCtx = pipeline.Context{AccountID: "123456789012", Region: "us-east-1", Dir: "/work"}

func testSpec() Spec {
	return Spec{
		Repository: "rstudio",
		Tag:        "v1",
		Dockerfile: "Dockerfile",
		Context:    "/work/rstudio",
		Platform:   "linux/amd64",
		BuildArgs:  map[string]string{"R_VERSION": "4.4", "BASE": "ubuntu"},
		SecretArgs: []SecretArg{{Arg: "RSTUDIO_PASSWORD", Ref: cloud.SecretRef{ID: "rstudio-creds", Key: "password"}}},
	}
}

func TestExistingImageSkipsBuild(t *testing.T) {
	checker := &fakeChecker{exists: true}
	rec := &shell.Recorder{}
	b := NewBuilder(testSpec(), checker, fakeSecrets{}, fakeCreds{}, rec, nil)

	outputs, err := b.Run(context.Background(), stageCtx)
	reason, skipped := pipeline.IsSkip(err)
	require.True(t, skipped)
	assert.Equal(t, AlreadyExists, reason)
	assert.Contains(t, reason, "already exists")
	assert.Empty(t, rec.Calls)
	assert.Equal(t, []string{"rstudio:v1"}, checker.seen)
	assert.Equal(t, "123456789012.dkr.ecr.us-east-1.amazonaws.com/rstudio:v1", outputs["image"])
}

func TestMissingImageIsBuiltAndPushed(t *testing.T) {
	rec := &shell.Recorder{}
	secrets := fakeSecrets{"rstudio-creds#password": "s3cret"}
	b := NewBuilder(testSpec(), &fakeChecker{}, secrets, fakeCreds{}, rec, nil)

	outputs, err := b.Run(context.Background(), stageCtx)
	require.NoError(t, err)

	ref := "123456789012.dkr.ecr.us-east-1.amazonaws.com/rstudio:v1"
	assert.Equal(t, ref, outputs["image"])
	assert.Equal(t, []string{"docker login", "docker build", "docker push"}, rec.Commands())

	login := rec.Calls[0]
	assert.NotContains(t, login.Args, "token-xyz")
	assert.Equal(t, "token-xyz", rec.Stdins[0])

	build := rec.Calls[1]
	assert.Equal(t, []string{
		"build", "-t", ref,
		"-f", "Dockerfile",
		"--platform", "linux/amd64",
		"--build-arg", "BASE=ubuntu",
		"--build-arg", "R_VERSION=4.4",
		"--build-arg", "RSTUDIO_PASSWORD=s3cret",
		"/work/rstudio",
	}, build.Args)
	assert.Contains(t, build.Secrets, "s3cret")
	assert.NotContains(t, build.String(), "s3cret")

	assert.Equal(t, []string{"push", ref}, rec.Calls[2].Args)
}

func TestMountedSecretStaysOutOfArgs(t *testing.T) {
	rec := &shell.Recorder{}
	spec := testSpec()
	spec.SecretArgs[0].Mount = true
	secrets := fakeSecrets{"rstudio-creds#password": "s3cret"}
	b := NewBuilder(spec, &fakeChecker{}, secrets, fakeCreds{}, rec, nil).WithEnv([]string{"AWS_PROFILE=deploy"})

	_, err := b.Run(context.Background(), stageCtx)
	require.NoError(t, err)
	require.Len(t, rec.Calls, 3)

	build := rec.Calls[1]
	assert.Contains(t, build.Args, "id=RSTUDIO_PASSWORD,env=RSTUDIO_PASSWORD")
	assert.NotContains(t, build.Args, "RSTUDIO_PASSWORD=s3cret")
	for _, arg := range build.Args {
		assert.NotContains(t, arg, "s3cret")
	}
	assert.Contains(t, build.Env, "DOCKER_BUILDKIT=1")
	assert.Contains(t, build.Env, "RSTUDIO_PASSWORD=s3cret")
	assert.Contains(t, build.Env, "AWS_PROFILE=deploy")

	push := rec.Calls[2]
	assert.Equal(t, []string{"AWS_PROFILE=deploy"}, push.Env)
	assert.Equal(t, []string{"AWS_PROFILE=deploy"}, rec.Calls[0].Env)
}

func TestMissingSecretFailsBeforeDocker(t *testing.T) {
	rec := &shell.Recorder{}
	b := NewBuilder(testSpec(), &fakeChecker{}, fakeSecrets{}, fakeCreds{}, rec, nil)

	_, err := b.Run(context.Background(), stageCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, cloud.ErrSecretNotFound)
	assert.Contains(t, err.Error(), "RSTUDIO_PASSWORD")
	assert.Empty(t, rec.Calls)
}

func TestBuildFailureStopsBeforePush(t *testing.T) {
	rec := &shell.Recorder{Handler: func(cmd shell.Cmd) ([]byte, error) {
		if len(cmd.Args) > 0 && cmd.Args[0] == "build" {
			return nil, errors.New("exit status 1")
		}
		return nil, nil
	}}
	spec := testSpec()
	spec.SecretArgs = nil
	b := NewBuilder(spec, &fakeChecker{}, nil, fakeCreds{}, rec, nil)

	_, err := b.Run(context.Background(), stageCtx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker build")
	assert.Equal(t, []string{"docker login", "docker build"}, rec.Commands())
}

func TestExistenceCheckErrorIsFatal(t *testing.T) {
	rec := &shell.Recorder{}
	b := NewBuilder(testSpec(), &fakeChecker{err: errors.New("access denied")}, fakeSecrets{}, fakeCreds{}, rec, nil)

	_, err := b.Run(context.Background(), stageCtx)
	require.Error(t, err)
	_, skipped := pipeline.IsSkip(err)
	assert.False(t, skipped)
	assert.Empty(t, rec.Calls)
}

func TestResolveContext(t *testing.T) {
	assert.Equal(t, "/root/app", ResolveContext("/root", "app"))
	assert.Equal(t, "/abs", ResolveContext("/root", "/abs"))
	assert.Equal(t, "", ResolveContext("/root", ""))
}
