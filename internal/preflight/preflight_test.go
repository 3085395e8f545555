package preflight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/adstackctl/internal/cloud"
	"github.com/codex-k8s/adstackctl/internal/env"
)

type fakeIdentity struct {
	id  cloud.CallerIdentity
	err error
}

func (f fakeIdentity) CallerIdentity(context.Context) (cloud.CallerIdentity, error) {
	return f.id, f.err
}

func checker(identity IdentityProvider, vars env.Vars, tools ...string) *Checker {
	c := NewChecker(identity, vars, nil)
	c.lookPath = func(name string) (string, error) {
		for _, t := range tools {
			if t == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
	return c
}

func TestRunPasses(t *testing.T) {
	c := checker(fakeIdentity{id: cloud.CallerIdentity{AccountID: "123456789012"}}, env.Vars{"TF_VAR_admin": "x"}, "terraform", "docker")

	report := c.Run(context.Background(), Requirements{
		Tools:         []string{"terraform", "docker"},
		OptionalTools: []string{"aws"},
		Env:           []string{"TF_VAR_admin"},
		CheckIdentity: true,
	})

	assert.True(t, report.Passed)
	assert.Equal(t, "123456789012", report.AccountID)
	assert.Empty(t, report.Missing())
	require.Len(t, report.Checks, 5)
	assert.False(t, report.Checks[2].Passed, "optional tool is reported")
}

func TestRunCollectsAllFailures(t *testing.T) {
	c := checker(fakeIdentity{err: errors.New("ExpiredToken")}, env.Vars{}, "docker")

	report := c.Run(context.Background(), Requirements{
		Tools:         []string{"terraform", "docker"},
		Env:           []string{"AWS_PROFILE"},
		CheckIdentity: true,
	})

	assert.False(t, report.Passed)
	assert.Equal(t, []string{"tool terraform", "env AWS_PROFILE", "cloud credentials"}, report.Missing())
	assert.Empty(t, report.AccountID)
}

func TestRunAccountMismatch(t *testing.T) {
	c := checker(fakeIdentity{id: cloud.CallerIdentity{AccountID: "111111111111"}}, nil)
	report := c.Run(context.Background(), Requirements{CheckIdentity: true, ExpectedAccount: "222222222222"})
	assert.False(t, report.Passed)
	assert.Contains(t, report.Checks[0].Detail, "expected 222222222222")
}

func TestRunWithoutIdentityProvider(t *testing.T) {
	report := checker(nil, nil).Run(context.Background(), Requirements{CheckIdentity: true})
	assert.False(t, report.Passed)
}
