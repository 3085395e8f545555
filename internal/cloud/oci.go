package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// CredentialSource provides registry credentials on demand.
type CredentialSource interface {
	Credentials(ctx context.Context) (RegistryCredentials, error)
}

// OCIChecker resolves tags through the OCI distribution API, so it works
// against any compliant registry, ECR included.
type OCIChecker struct {
	host      string
	creds     CredentialSource
	plainHTTP bool
	client    *http.Client
}

// NewOCIChecker builds a checker for host. creds may be nil for anonymous registries.
func NewOCIChecker(host string, creds CredentialSource) *OCIChecker {
	return &OCIChecker{host: host, creds: creds, client: retry.DefaultClient}
}

// WithPlainHTTP switches the checker to plain HTTP, for local registries.
func (c *OCIChecker) WithPlainHTTP(plain bool) *OCIChecker {
	c.plainHTTP = plain
	return c
}

// ImageExists reports whether repo:tag resolves in the registry.
func (c *OCIChecker) ImageExists(ctx context.Context, repo, tag string) (bool, error) {
	r, err := remote.NewRepository(c.host + "/" + repo)
	if err != nil {
		return false, fmt.Errorf("parse repository reference: %w", err)
	}
	r.PlainHTTP = c.plainHTTP

	authClient := &auth.Client{
		Client: c.client,
		Cache:  auth.NewCache(),
	}
	if c.creds != nil {
		creds, err := c.creds.Credentials(ctx)
		if err != nil {
			return false, fmt.Errorf("registry credentials: %w", err)
		}
		authClient.Credential = auth.StaticCredential(c.host, auth.Credential{
			Username: creds.Username,
			Password: creds.Password,
		})
	}
	r.Client = authClient

	if _, err := r.Resolve(ctx, tag); err != nil {
		if errors.Is(err, errdef.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve %s/%s:%s: %w", c.host, repo, tag, err)
	}
	return true, nil
}
