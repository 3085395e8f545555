package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/adstackctl/internal/env"
)

const sampleConfig = `project: rstudio
envFiles:
  - .env
region: '{{ envOr "DEPLOY_REGION" "us-east-1" }}'
stages:
  - name: directory-controller
    dir: 01-directory
  - name: domain-servers
    dir: 02-servers
    dependsOn: [directory-controller]
    inputs:
      directory_id: directory-controller.directory_id
  - name: image-build-and-push
    type: image
  - name: container-cluster
    dir: 04-ecs
    dependsOn: [domain-servers, image-build-and-push]
    timeout: 45m
image:
  repository: rstudio
  tag: '{{ .UserVars.TAG }}'
  secretArgs:
    - arg: RSTUDIO_PASSWORD
      secret: rstudio_credentials
      key: password
cleanup:
  secrets: [rstudio_credentials, admin_ad_credentials]
  repositories: [rstudio]
readiness:
  loadBalancer: rstudio-alb
  interval: 15s
directory:
  hosts:
    - key: Name
      value: windows-ad-admin
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEPLOY_REGION=eu-central-1\n"), 0o600))
	return path
}

func TestLoadRendersAndDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, ctx, err := Load(path, LoadOptions{UserVars: env.Vars{"TAG": "2025.09"}})
	require.NoError(t, err)

	assert.Equal(t, "rstudio", ctx.Project)
	assert.Equal(t, "eu-central-1", cfg.Region)
	assert.Equal(t, "2025.09", cfg.Image.Tag)
	assert.Equal(t, ExistsCheckECR, cfg.Image.ExistsCheck)
	assert.Equal(t, "terraform", cfg.Terraform.Binary)
	assert.Equal(t, StageTypeTerraform, cfg.Stages[0].Type)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "04-ecs"), cfg.StageDir(cfg.Stages[3]))
	assert.Equal(t, 45*time.Minute, cfg.Stages[3].StageTimeout())
	assert.Equal(t, 30, cfg.Readiness.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Readiness.IntervalDuration())
	assert.Equal(t, 5*time.Second, cfg.Readiness.TimeoutDuration())

	img, ok := cfg.ImageStage()
	require.True(t, ok)
	assert.Equal(t, "image-build-and-push", img.Name)
}

func TestLoadRegionOverride(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, _, err := Load(path, LoadOptions{Region: "ap-south-1", UserVars: env.Vars{"TAG": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", cfg.Region)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg, err := Parse([]byte(`project: ""
stages:
  - name: a
  - name: b
    type: helm
  - name: img
    type: image
  - name: c
    dir: c
    inputs:
      x: nodot
cleanup:
  secretsBefore: img
readiness:
  interval: soon
  timeout: 0s
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "project must be set")
	assert.Contains(t, msg, "region must be set")
	assert.Contains(t, msg, `stage "a": dir must be set`)
	assert.Contains(t, msg, `unknown type "helm"`)
	assert.Contains(t, msg, "image stage requires an image block")
	assert.Contains(t, msg, `input "x" must reference`)
	assert.Contains(t, msg, "readiness.loadBalancer must be set")
	assert.Contains(t, msg, "readiness.interval")
	assert.Contains(t, msg, "readiness.timeout must be positive")
	assert.Contains(t, msg, `cleanup.secretsBefore: "img" is not a terraform stage`)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("project: x\nstagez: []\n"))
	require.Error(t, err)
}

func TestRequireEnvTemplateFunc(t *testing.T) {
	_, err := RenderTemplate("t", []byte(`{{ requireEnv "NOPE_NOT_SET" }}`), TemplateContext{EnvMap: env.Vars{}})
	require.Error(t, err)

	out, err := RenderTemplate("t", []byte(`{{ requireEnv "A" | slug }}`), TemplateContext{EnvMap: env.Vars{"A": "Big Value"}})
	require.NoError(t, err)
	assert.Equal(t, "big-value", string(out))
}

func TestSplitOutputRef(t *testing.T) {
	stage, key, ok := SplitOutputRef("directory-controller.dns_ips")
	require.True(t, ok)
	assert.Equal(t, "directory-controller", stage)
	assert.Equal(t, "dns_ips", key)

	_, _, ok = SplitOutputRef("missing")
	assert.False(t, ok)
}
