package deploy

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/config"
	"github.com/codex-k8s/adstackctl/internal/env"
	"github.com/codex-k8s/adstackctl/internal/image"
	"github.com/codex-k8s/adstackctl/internal/pipeline"
	"github.com/codex-k8s/adstackctl/internal/terraform"
)

// Cleanup stage name prefixes used in destroy plans.
const (
	DeleteRepositoryPrefix = "delete-repository:"
	DeleteSecretPrefix     = "delete-secret:"
)

// PlanApply builds the apply pipeline in declared order.
func (o *Orchestrator) PlanApply() ([]pipeline.Stage, error) {
	if err := o.validateInputs(); err != nil {
		return nil, err
	}
	stages := make([]pipeline.Stage, 0, len(o.cfg.Stages))
	for _, st := range o.cfg.Stages {
		stage := pipeline.Stage{
			Name:      st.Name,
			Dir:       o.cfg.StageDir(st),
			Operation: pipeline.OperationApply,
			DependsOn: slices.Clone(st.DependsOn),
			Timeout:   st.StageTimeout(),
		}
		switch st.Type {
		case config.StageTypeImage:
			if o.cfg.Image == nil {
				return nil, fmt.Errorf("stage %q: image block is missing", st.Name)
			}
			stage.Dir = o.cfg.ProjectRoot
			stage.Action = &imageAction{o: o}
		default:
			stage.Action = o.terraformAction(st, pipeline.OperationApply, nil)
		}
		stages = append(stages, stage)
	}
	if err := pipeline.Validate(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// PlanDestroy builds the destroy pipeline: terraform stages in reverse order,
// with the image stage replaced by best-effort deletions of its registry
// repositories. Secret deletions run right before the cleanup.secretsBefore
// teardown, which defaults to the first declared terraform stage. Deletions
// without an anchor in the plan run last.
func (o *Orchestrator) PlanDestroy() ([]pipeline.Stage, error) {
	if err := o.validateInputs(); err != nil {
		return nil, err
	}
	dependents := make(map[string][]string)
	for _, st := range o.cfg.Stages {
		for _, dep := range st.DependsOn {
			dependents[dep] = append(dependents[dep], st.Name)
		}
	}

	// Names the destroy plan uses for each apply stage.
	renamed := make(map[string][]string)
	deps := func(name string) []string {
		var out []string
		for _, d := range dependents[name] {
			out = append(out, renamed[d]...)
		}
		return out
	}

	lookup := newOutputLookup(o)
	secretsBefore := o.secretsBefore()
	var stages []pipeline.Stage
	hasImage, secretsPlaced := false, false
	for i := len(o.cfg.Stages) - 1; i >= 0; i-- {
		st := o.cfg.Stages[i]
		if st.Type == config.StageTypeImage {
			hasImage = true
			cleanup := o.repositoryStages(deps(st.Name))
			for _, c := range cleanup {
				renamed[st.Name] = append(renamed[st.Name], c.Name)
			}
			stages = append(stages, cleanup...)
			continue
		}

		dependsOn := deps(st.Name)
		if st.Name == secretsBefore {
			secrets := o.secretStages(deps(st.Name))
			for _, c := range secrets {
				dependsOn = append(dependsOn, c.Name)
			}
			stages = append(stages, secrets...)
			secretsPlaced = true
		}
		stages = append(stages, pipeline.Stage{
			Name:      st.Name,
			Dir:       o.cfg.StageDir(st),
			Operation: pipeline.OperationDestroy,
			DependsOn: dependsOn,
			Timeout:   st.StageTimeout(),
			Action:    o.terraformAction(st, pipeline.OperationDestroy, lookup),
		})
		renamed[st.Name] = []string{st.Name}
	}
	if !hasImage {
		stages = append(stages, o.repositoryStages(nil)...)
	}
	if !secretsPlaced {
		stages = append(stages, o.secretStages(nil)...)
	}

	if err := pipeline.Validate(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// secretsBefore names the terraform stage whose teardown secret deletions precede.
func (o *Orchestrator) secretsBefore() string {
	if name := strings.TrimSpace(o.cfg.Cleanup.SecretsBefore); name != "" {
		return name
	}
	for _, st := range o.cfg.Stages {
		if st.Type != config.StageTypeImage {
			return st.Name
		}
	}
	return ""
}

// validateInputs checks that every input names an output of an earlier stage
// listed in dependsOn.
func (o *Orchestrator) validateInputs() error {
	var errs []error
	seen := make(map[string]struct{}, len(o.cfg.Stages))
	for _, st := range o.cfg.Stages {
		names := make([]string, 0, len(st.Inputs))
		for name := range st.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ref := st.Inputs[name]
			producer, _, ok := config.SplitOutputRef(ref)
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("stage %q input %s: invalid output reference %q", st.Name, name, ref))
			case !isSeen(seen, producer):
				errs = append(errs, fmt.Errorf("stage %q input %s: %q is not an earlier stage", st.Name, name, producer))
			case !slices.Contains(st.DependsOn, producer):
				errs = append(errs, fmt.Errorf("stage %q input %s: %q must be listed in dependsOn", st.Name, name, producer))
			}
		}
		seen[st.Name] = struct{}{}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid stage inputs: %w", errors.Join(errs...))
	}
	return nil
}

func isSeen(seen map[string]struct{}, name string) bool {
	_, ok := seen[name]
	return ok
}

func (o *Orchestrator) repositoryStages(dependsOn []string) []pipeline.Stage {
	var repos []string
	if o.cfg.Image != nil && o.cfg.Image.Repository != "" {
		repos = append(repos, o.cfg.Image.Repository)
	}

	var stages []pipeline.Stage
	for _, repo := range dedupe(append(repos, o.cfg.Cleanup.Repositories...)) {
		stages = append(stages, pipeline.Stage{
			Name:       DeleteRepositoryPrefix + repo,
			Operation:  pipeline.OperationDestroy,
			DependsOn:  dependsOn,
			BestEffort: true,
			Action:     deleteRepository(o.deps.Registry, repo),
		})
	}
	return stages
}

func (o *Orchestrator) secretStages(dependsOn []string) []pipeline.Stage {
	var stages []pipeline.Stage
	for _, secret := range dedupe(o.cfg.Cleanup.Secrets) {
		stages = append(stages, pipeline.Stage{
			Name:       DeleteSecretPrefix + secret,
			Operation:  pipeline.OperationDestroy,
			DependsOn:  dependsOn,
			BestEffort: true,
			Action:     deleteSecret(o.deps.Secrets, secret),
		})
	}
	return stages
}

func (o *Orchestrator) terraformAction(st config.StageSpec, op pipeline.Operation, lookup *outputLookup) *terraformAction {
	return &terraformAction{
		client: o.terraformClient(o.cfg.StageDir(st)),
		op:     op,
		vars:   st.Vars,
		inputs: st.Inputs,
		lookup: lookup,
	}
}

func (o *Orchestrator) terraformClient(dir string) *terraform.Client {
	return terraform.NewClient(o.deps.Shell, o.cfg.Terraform.Binary, dir, o.childEnv())
}

// childEnv is the merged environment handed to terraform and docker, with
// terraform.env taking precedence.
func (o *Orchestrator) childEnv() []string {
	return env.Merge(o.vars, env.Vars(o.cfg.Terraform.Env)).Environ()
}

// terraformAction applies or destroys one bundle.
type terraformAction struct {
	client *terraform.Client
	op     pipeline.Operation
	vars   map[string]string
	inputs map[string]string
	lookup *outputLookup
}

func (a *terraformAction) Init(ctx context.Context, _ pipeline.Context) error {
	return a.client.Init(ctx)
}

func (a *terraformAction) Run(ctx context.Context, sc pipeline.Context) (map[string]string, error) {
	vars, err := a.resolveVars(ctx, sc)
	if err != nil {
		return nil, err
	}
	if a.op == pipeline.OperationDestroy {
		return nil, a.client.Destroy(ctx, vars)
	}
	if err := a.client.Apply(ctx, vars); err != nil {
		return nil, err
	}
	return a.client.Output(ctx)
}

// resolveVars merges static vars with inputs taken from earlier stage outputs.
// During destroy the producing stage has not run, so its current state is read instead.
func (a *terraformAction) resolveVars(ctx context.Context, sc pipeline.Context) (map[string]string, error) {
	vars := maps.Clone(a.vars)
	if vars == nil {
		vars = make(map[string]string)
	}

	names := make([]string, 0, len(a.inputs))
	for name := range a.inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := a.inputs[name]
		stage, key, ok := config.SplitOutputRef(ref)
		if !ok {
			return nil, fmt.Errorf("input %s: invalid output reference %q", name, ref)
		}
		value, found := sc.Output(stage, key)
		if !found && a.lookup != nil {
			var err error
			value, found, err = a.lookup.get(ctx, sc, stage, key)
			if err != nil {
				return nil, fmt.Errorf("input %s: read outputs of %s: %w", name, stage, err)
			}
		}
		if !found {
			return nil, fmt.Errorf("input %s: output %s is not available", name, ref)
		}
		vars[name] = value
	}
	return vars, nil
}

// outputLookup reads outputs of stages that did not run in this pipeline.
// Results are cached per stage for the lifetime of one plan.
type outputLookup struct {
	o     *Orchestrator
	cache map[string]map[string]string
}

func newOutputLookup(o *Orchestrator) *outputLookup {
	return &outputLookup{o: o, cache: make(map[string]map[string]string)}
}

func (l *outputLookup) get(ctx context.Context, sc pipeline.Context, stage, key string) (string, bool, error) {
	outputs, ok := l.cache[stage]
	if !ok {
		var err error
		outputs, err = l.load(ctx, sc, stage)
		if err != nil {
			return "", false, err
		}
		l.cache[stage] = outputs
	}
	v, found := outputs[key]
	return v, found, nil
}

func (l *outputLookup) load(ctx context.Context, sc pipeline.Context, stage string) (map[string]string, error) {
	for _, st := range l.o.cfg.Stages {
		if st.Name != stage {
			continue
		}
		if st.Type == config.StageTypeImage {
			return map[string]string{"image": l.o.imageBuilder(sc).Reference(sc.AccountID, sc.Region)}, nil
		}
		client := l.o.terraformClient(l.o.cfg.StageDir(st))
		if err := client.Init(ctx); err != nil {
			return nil, err
		}
		return client.Output(ctx)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// imageAction builds the image with a checker selected at stage time, once the
// account and region are known.
type imageAction struct {
	o *Orchestrator
}

func (a *imageAction) Run(ctx context.Context, sc pipeline.Context) (map[string]string, error) {
	if a.o.deps.Registry == nil {
		return nil, errors.New("image stage needs a registry")
	}
	return a.o.imageBuilder(sc).Run(ctx, sc)
}

func (o *Orchestrator) imageBuilder(sc pipeline.Context) *image.Builder {
	spec := o.cfg.Image
	return image.NewBuilder(o.imageSpec(), o.imageChecker(sc, spec), o.secretGetter(), o.deps.Registry, o.deps.Shell, o.logger).
		WithEnv(o.childEnv())
}

func (o *Orchestrator) imageSpec() image.Spec {
	img := o.cfg.Image
	spec := image.Spec{
		Repository: img.Repository,
		Tag:        img.Tag,
		Dockerfile: image.ResolveContext(o.cfg.ProjectRoot, img.Dockerfile),
		Context:    image.ResolveContext(o.cfg.ProjectRoot, img.Context),
		Platform:   img.Platform,
		BuildArgs:  img.BuildArgs,
	}
	if spec.Context == "" {
		spec.Context = o.cfg.ProjectRoot
	}
	for _, sa := range img.SecretArgs {
		spec.SecretArgs = append(spec.SecretArgs, image.SecretArg{
			Arg:   sa.Arg,
			Ref:   cloud.SecretRef{Name: sa.Arg, ID: sa.Secret, Key: sa.Key},
			Mount: sa.Mount,
		})
	}
	return spec
}

func (o *Orchestrator) imageChecker(sc pipeline.Context, spec *config.ImageSpec) image.ExistenceChecker {
	switch {
	case o.deps.ImageChecker != nil:
		return o.deps.ImageChecker
	case spec.ExistsCheck == config.ExistsCheckOCI:
		return cloud.NewOCIChecker(cloud.Host(sc.AccountID, sc.Region), o.deps.Registry)
	default:
		return o.deps.Registry
	}
}

func (o *Orchestrator) secretGetter() image.SecretGetter {
	if o.deps.Secrets == nil {
		return nil
	}
	return o.deps.Secrets
}

func deleteRepository(reg Registry, repo string) pipeline.Action {
	return pipeline.ActionFunc(func(ctx context.Context, _ pipeline.Context) (map[string]string, error) {
		if reg == nil {
			return nil, errors.New("no registry configured")
		}
		return nil, reg.DeleteRepository(ctx, repo, true)
	})
}

func deleteSecret(store SecretStore, name string) pipeline.Action {
	return pipeline.ActionFunc(func(ctx context.Context, _ pipeline.Context) (map[string]string, error) {
		if store == nil {
			return nil, errors.New("no secret store configured")
		}
		return nil, store.Delete(ctx, name)
	})
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
