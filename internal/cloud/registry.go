package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ECRAPI is the subset of the ECR client used here.
type ECRAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
	DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// RegistryCredentials authenticate docker and OCI clients against a registry.
type RegistryCredentials struct {
	// Host is the registry host, e.g. 123456789012.dkr.ecr.us-east-1.amazonaws.com.
	Host     string
	Username string
	Password string
}

// ECRRegistry answers image lookups and performs repository cleanup in ECR.
type ECRRegistry struct {
	api    ECRAPI
	logger *slog.Logger
}

// NewECRRegistry wraps api.
func NewECRRegistry(api ECRAPI, opts ...Option) *ECRRegistry {
	o := applyOptions(opts)
	return &ECRRegistry{api: api, logger: o.logger}
}

// Host returns the private registry host for an account and region.
func Host(accountID, region string) string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", accountID, region)
}

// ImageExists reports whether repo already holds tag. A missing repository counts as absent.
func (r *ECRRegistry) ImageExists(ctx context.Context, repo, tag string) (bool, error) {
	out, err := r.api.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repo),
		ImageIds:       []ecrtypes.ImageIdentifier{{ImageTag: aws.String(tag)}},
	})
	if err != nil {
		switch errorCode(err) {
		case codeImageNotFound, codeRepositoryNotFound:
			return false, nil
		}
		return false, wrapAPIError("DescribeImages", err)
	}
	return len(out.ImageDetails) > 0, nil
}

// Credentials exchanges the caller identity for a short-lived registry login.
func (r *ECRRegistry) Credentials(ctx context.Context) (RegistryCredentials, error) {
	out, err := r.api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return RegistryCredentials{}, wrapAPIError("GetAuthorizationToken", err)
	}
	if len(out.AuthorizationData) == 0 {
		return RegistryCredentials{}, fmt.Errorf("GetAuthorizationToken returned no authorization data")
	}
	data := out.AuthorizationData[0]

	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return RegistryCredentials{}, fmt.Errorf("decode registry token: %w", err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return RegistryCredentials{}, fmt.Errorf("registry token has unexpected format")
	}

	host := aws.ToString(data.ProxyEndpoint)
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	return RegistryCredentials{Host: host, Username: user, Password: pass}, nil
}

// DeleteRepository removes repo. With force, images inside are deleted too.
// It returns ErrRepositoryNotFound when the repository is already gone.
func (r *ECRRegistry) DeleteRepository(ctx context.Context, repo string, force bool) error {
	r.logger.InfoContext(ctx, "deleting registry repository", "repository", repo, "force", force)
	_, err := r.api.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(repo),
		Force:          force,
	})
	if err != nil {
		if errorCode(err) == codeRepositoryNotFound {
			return fmt.Errorf("delete repository %q: %w", repo, ErrRepositoryNotFound)
		}
		return wrapAPIError("DeleteRepository", err)
	}
	return nil
}
