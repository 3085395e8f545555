// Package config contains the loader and strongly typed model for deploy.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/adstackctl/internal/env"
)

// Stage types understood by the planner.
const (
	StageTypeTerraform = "terraform"
	StageTypeImage     = "image"
)

// Image existence check backends.
const (
	ExistsCheckECR = "ecr"
	ExistsCheckOCI = "oci"
)

const (
	defaultTerraformBinary = "terraform"
	defaultMaxAttempts     = 30
	defaultInterval        = 10 * time.Second
	defaultProbeTimeout    = 5 * time.Second
)

// DeployConfig describes a whole environment: the ordered stages, the image build,
// teardown cleanup and the readiness check that gates success.
type DeployConfig struct {
	// Project is the short project name used in logs and defaults.
	Project string `yaml:"project"`
	// EnvFiles lists .env files to load before rendering.
	EnvFiles []string `yaml:"envFiles,omitempty"`
	// Region is the AWS region every stage targets.
	Region string `yaml:"region,omitempty"`
	// AccountID pins the AWS account; when empty it is taken from the caller identity.
	AccountID string `yaml:"accountId,omitempty"`
	// Terraform configures the declarative applier binary.
	Terraform TerraformConfig `yaml:"terraform,omitempty"`
	// Stages lists pipeline stages in apply order.
	Stages []StageSpec `yaml:"stages"`
	// Image describes the container image built by the image stage.
	Image *ImageSpec `yaml:"image,omitempty"`
	// Cleanup lists artifacts removed on destroy on a best-effort basis.
	Cleanup CleanupSpec `yaml:"cleanup,omitempty"`
	// Readiness configures the post-deploy endpoint check.
	Readiness ReadinessSpec `yaml:"readiness"`
	// Directory lists the directory-service hosts reported during validation.
	Directory DirectorySpec `yaml:"directory,omitempty"`
	// Preflight adds project-specific precondition checks.
	Preflight PreflightSpec `yaml:"preflight,omitempty"`

	// ProjectRoot is the directory holding deploy.yaml. Not read from YAML.
	ProjectRoot string `yaml:"-"`
}

// TerraformConfig configures how terraform is invoked.
type TerraformConfig struct {
	// Binary is the terraform executable name or path.
	Binary string `yaml:"binary,omitempty"`
	// Env adds environment variables to every terraform invocation.
	Env map[string]string `yaml:"env,omitempty"`
}

// StageSpec describes one pipeline stage.
type StageSpec struct {
	// Name identifies the stage in logs, dependencies and outputs.
	Name string `yaml:"name"`
	// Type is "terraform" (default) or "image".
	Type string `yaml:"type,omitempty"`
	// Dir is the bundle working directory relative to the project root.
	Dir string `yaml:"dir,omitempty"`
	// DependsOn lists stages that must converge first.
	DependsOn []string `yaml:"dependsOn,omitempty"`
	// Vars are passed to terraform as -var key=value.
	Vars map[string]string `yaml:"vars,omitempty"`
	// Inputs map a terraform variable to a prior output ("<stage>.<key>").
	Inputs map[string]string `yaml:"inputs,omitempty"`
	// Timeout bounds the stage, e.g. "45m". Empty means no stage-specific limit.
	Timeout string `yaml:"timeout,omitempty"`
}

// ImageSpec describes the container image built and pushed by the image stage.
type ImageSpec struct {
	// Repository is the ECR repository name (without registry host).
	Repository string `yaml:"repository"`
	// Tag is the image tag checked for existence before building.
	Tag string `yaml:"tag"`
	// Dockerfile is an optional Dockerfile path relative to the project root.
	Dockerfile string `yaml:"dockerfile,omitempty"`
	// Context is the build context relative to the project root.
	Context string `yaml:"context,omitempty"`
	// Platform is passed to docker build --platform when set.
	Platform string `yaml:"platform,omitempty"`
	// BuildArgs are plain build arguments.
	BuildArgs map[string]string `yaml:"buildArgs,omitempty"`
	// SecretArgs are build arguments fetched from the secret store at stage time.
	SecretArgs []SecretArg `yaml:"secretArgs,omitempty"`
	// ExistsCheck selects the tag lookup backend: "ecr" (default) or "oci".
	ExistsCheck string `yaml:"existsCheck,omitempty"`
}

// SecretArg binds a build argument to a secret store entry.
type SecretArg struct {
	// Arg is the docker build argument name.
	Arg string `yaml:"arg"`
	// Secret is the secret store key (name or ARN).
	Secret string `yaml:"secret"`
	// Key selects a field when the secret holds a JSON object.
	Key string `yaml:"key,omitempty"`
	// Mount passes the value as a BuildKit secret instead of a build argument.
	// The Dockerfile must read it with RUN --mount=type=secret,id=<arg>.
	Mount bool `yaml:"mount,omitempty"`
}

// CleanupSpec lists irreversible deletions performed during destroy.
type CleanupSpec struct {
	// Secrets are deleted without a recovery window.
	Secrets []string `yaml:"secrets,omitempty"`
	// Repositories are registry repositories force-deleted with their images.
	Repositories []string `yaml:"repositories,omitempty"`
	// SecretsBefore names the terraform stage whose teardown follows the secret
	// deletions. Empty means the first declared terraform stage.
	SecretsBefore string `yaml:"secretsBefore,omitempty"`
}

// ReadinessSpec configures the readiness poller.
type ReadinessSpec struct {
	// LoadBalancer is the logical ALB name resolved to a DNS name.
	LoadBalancer string `yaml:"loadBalancer"`
	// MaxAttempts bounds the number of probes.
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	// Interval is the fixed delay between probes.
	Interval string `yaml:"interval,omitempty"`
	// Timeout bounds a single probe.
	Timeout string `yaml:"timeout,omitempty"`
}

// DirectorySpec lists tag filters used to report directory-service hosts.
type DirectorySpec struct {
	// Hosts are looked up after the load balancer resolves; absence only warns.
	Hosts []TagFilter `yaml:"hosts,omitempty"`
}

// TagFilter matches EC2 instances by tag.
type TagFilter struct {
	// Key is the tag key, e.g. "Name".
	Key string `yaml:"key"`
	// Value is the tag value.
	Value string `yaml:"value"`
}

// PreflightSpec adds project-specific preflight checks.
type PreflightSpec struct {
	// RequiredEnv lists environment variables that must be non-empty.
	RequiredEnv []string `yaml:"requiredEnv,omitempty"`
	// OptionalTools are reported when missing but never fail preflight.
	OptionalTools []string `yaml:"optionalTools,omitempty"`
}

// LoadOptions describes parameters that influence template rendering of deploy.yaml.
type LoadOptions struct {
	// Region overrides the configured region.
	Region string
	// UserVars are inline variables for template rendering.
	UserVars env.Vars
	// VarFiles lists additional var-files to load.
	VarFiles []string
}

// TemplateContext represents the data exposed to Go-templates when rendering deploy.yaml.
type TemplateContext struct {
	// Project is the project identifier.
	Project string
	// ProjectRoot is the path to the project root on disk.
	ProjectRoot string
	// Region is the region known before rendering (flag or AWS_REGION).
	Region string
	// Now is the timestamp captured for template rendering.
	Now time.Time
	// UserVars contains inline user variables.
	UserVars env.Vars
	// EnvMap merges OS env, envFiles, var-files and user variables.
	EnvMap env.Vars
}

// rawHeader is a minimal struct used to extract top-level fields before templating.
type rawHeader struct {
	Project  string   `yaml:"project"`
	EnvFiles []string `yaml:"envFiles"`
}

// LoadAndRender reads deploy.yaml, loads envFiles and user vars, and returns rendered YAML
// bytes together with the template context that was used.
func LoadAndRender(path string, opts LoadOptions) ([]byte, TemplateContext, error) {
	var zeroCtx TemplateContext

	if path == "" {
		return nil, zeroCtx, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("resolve config path: %w", err)
	}

	rawBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, zeroCtx, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var header rawHeader
	if err := yaml.Unmarshal(rawBytes, &header); err != nil {
		return nil, zeroCtx, fmt.Errorf("parse top-level config fields: %w", err)
	}

	baseDir := filepath.Dir(absPath)

	envFileVars, err := env.LoadEnvFiles(baseDir, header.EnvFiles)
	if err != nil {
		return nil, zeroCtx, err
	}

	varFileVars := make(env.Vars)
	for _, vf := range opts.VarFiles {
		if strings.TrimSpace(vf) == "" {
			continue
		}
		vp, err := env.LoadVarFile(vf)
		if err != nil {
			return nil, zeroCtx, fmt.Errorf("load var-file %q: %w", vf, err)
		}
		varFileVars = env.Merge(varFileVars, vp)
	}

	envMap := env.Merge(env.FromOS(), envFileVars, varFileVars, opts.UserVars)

	ctx := TemplateContext{
		Project:     header.Project,
		ProjectRoot: baseDir,
		Region:      firstNonEmpty(opts.Region, envMap["AWS_REGION"], envMap["AWS_DEFAULT_REGION"]),
		Now:         time.Now().UTC(),
		UserVars:    opts.UserVars,
		EnvMap:      envMap,
	}

	rendered, err := RenderTemplate(filepath.Base(absPath), rawBytes, ctx)
	if err != nil {
		return nil, zeroCtx, err
	}

	return rendered, ctx, nil
}

// Load loads, templates, parses and validates deploy.yaml.
func Load(path string, opts LoadOptions) (*DeployConfig, TemplateContext, error) {
	rendered, ctx, err := LoadAndRender(path, opts)
	if err != nil {
		return nil, TemplateContext{}, err
	}

	cfg, err := Parse(rendered)
	if err != nil {
		return nil, TemplateContext{}, err
	}
	cfg.ProjectRoot = ctx.ProjectRoot
	cfg.Region = firstNonEmpty(opts.Region, cfg.Region, ctx.Region)

	if err := cfg.Validate(); err != nil {
		return nil, TemplateContext{}, err
	}
	return cfg, ctx, nil
}

// Parse decodes rendered deploy.yaml bytes and applies defaults. It does not validate.
func Parse(rendered []byte) (*DeployConfig, error) {
	var cfg DeployConfig
	dec := yaml.NewDecoder(bytes.NewReader(rendered))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse rendered deploy.yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *DeployConfig) applyDefaults() {
	if strings.TrimSpace(c.Terraform.Binary) == "" {
		c.Terraform.Binary = defaultTerraformBinary
	}
	for i := range c.Stages {
		if strings.TrimSpace(c.Stages[i].Type) == "" {
			c.Stages[i].Type = StageTypeTerraform
		}
	}
	if c.Image != nil && strings.TrimSpace(c.Image.ExistsCheck) == "" {
		c.Image.ExistsCheck = ExistsCheckECR
	}
	if c.Readiness.MaxAttempts == 0 {
		c.Readiness.MaxAttempts = defaultMaxAttempts
	}
}

// Validate reports every structural problem in the configuration at once.
// Dependency ordering is checked by the pipeline when plans are built.
func (c *DeployConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Project) == "" {
		errs = append(errs, errors.New("project must be set"))
	}
	if strings.TrimSpace(c.Region) == "" {
		errs = append(errs, errors.New("region must be set (config, --region or AWS_REGION)"))
	}
	if len(c.Stages) == 0 {
		errs = append(errs, errors.New("at least one stage must be defined"))
	}

	imageStages := 0
	for i, st := range c.Stages {
		label := fmt.Sprintf("stages[%d]", i)
		if st.Name != "" {
			label = fmt.Sprintf("stage %q", st.Name)
		}
		if strings.TrimSpace(st.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name must be set", label))
		}
		switch st.Type {
		case StageTypeTerraform:
			if strings.TrimSpace(st.Dir) == "" {
				errs = append(errs, fmt.Errorf("%s: dir must be set for terraform stages", label))
			}
		case StageTypeImage:
			imageStages++
		default:
			errs = append(errs, fmt.Errorf("%s: unknown type %q", label, st.Type))
		}
		if _, err := parseDuration(st.Timeout, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: timeout: %w", label, err))
		}
		for tfVar, ref := range st.Inputs {
			if _, _, ok := SplitOutputRef(ref); !ok {
				errs = append(errs, fmt.Errorf("%s: input %q must reference <stage>.<output>, got %q", label, tfVar, ref))
			}
		}
	}

	if imageStages > 1 {
		errs = append(errs, errors.New("at most one image stage may be defined"))
	}
	if imageStages == 1 {
		switch {
		case c.Image == nil:
			errs = append(errs, errors.New("image stage requires an image block"))
		default:
			if strings.TrimSpace(c.Image.Repository) == "" || strings.TrimSpace(c.Image.Tag) == "" {
				errs = append(errs, errors.New("image.repository and image.tag must be set"))
			}
			if c.Image.ExistsCheck != ExistsCheckECR && c.Image.ExistsCheck != ExistsCheckOCI {
				errs = append(errs, fmt.Errorf("image.existsCheck must be %q or %q", ExistsCheckECR, ExistsCheckOCI))
			}
			for _, sa := range c.Image.SecretArgs {
				if strings.TrimSpace(sa.Arg) == "" || strings.TrimSpace(sa.Secret) == "" {
					errs = append(errs, errors.New("image.secretArgs entries need arg and secret"))
				}
			}
		}
	}

	if before := strings.TrimSpace(c.Cleanup.SecretsBefore); before != "" && !c.hasTerraformStage(before) {
		errs = append(errs, fmt.Errorf("cleanup.secretsBefore: %q is not a terraform stage", before))
	}

	if strings.TrimSpace(c.Readiness.LoadBalancer) == "" {
		errs = append(errs, errors.New("readiness.loadBalancer must be set"))
	}
	if c.Readiness.MaxAttempts < 1 {
		errs = append(errs, errors.New("readiness.maxAttempts must be positive"))
	}
	if _, err := parseDuration(c.Readiness.Interval, defaultInterval); err != nil {
		errs = append(errs, fmt.Errorf("readiness.interval: %w", err))
	}
	if d, err := parseDuration(c.Readiness.Timeout, defaultProbeTimeout); err != nil {
		errs = append(errs, fmt.Errorf("readiness.timeout: %w", err))
	} else if d <= 0 {
		errs = append(errs, errors.New("readiness.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid deploy config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *DeployConfig) hasTerraformStage(name string) bool {
	for _, st := range c.Stages {
		if st.Name == name && st.Type == StageTypeTerraform {
			return true
		}
	}
	return false
}

// ImageStage returns the image stage spec, if one is declared.
func (c *DeployConfig) ImageStage() (StageSpec, bool) {
	for _, st := range c.Stages {
		if st.Type == StageTypeImage {
			return st, true
		}
	}
	return StageSpec{}, false
}

// StageDir resolves a stage directory against the project root.
func (c *DeployConfig) StageDir(st StageSpec) string {
	if st.Dir == "" || filepath.IsAbs(st.Dir) || c.ProjectRoot == "" {
		return st.Dir
	}
	return filepath.Join(c.ProjectRoot, st.Dir)
}

// StageTimeout returns the parsed stage timeout; zero means unbounded.
func (st StageSpec) StageTimeout() time.Duration {
	d, _ := parseDuration(st.Timeout, 0)
	return d
}

// IntervalDuration returns the parsed readiness interval.
func (r ReadinessSpec) IntervalDuration() time.Duration {
	d, _ := parseDuration(r.Interval, defaultInterval)
	return d
}

// TimeoutDuration returns the parsed per-probe timeout.
func (r ReadinessSpec) TimeoutDuration() time.Duration {
	d, _ := parseDuration(r.Timeout, defaultProbeTimeout)
	return d
}

// SplitOutputRef splits "<stage>.<output>" at the first dot.
func SplitOutputRef(ref string) (stage, key string, ok bool) {
	stage, key, ok = strings.Cut(strings.TrimSpace(ref), ".")
	if !ok || stage == "" || key == "" {
		return "", "", false
	}
	return stage, key, true
}

func parseDuration(value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", value)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
