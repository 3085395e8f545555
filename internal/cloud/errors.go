package cloud

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrSecretNotFound is returned when a secret does not exist or is already scheduled for deletion.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrSecretEmpty is returned when a secret exists but holds no string value.
	ErrSecretEmpty = errors.New("secret value is empty")
	// ErrSecretKeyNotFound is returned when a JSON secret lacks the requested key.
	ErrSecretKeyNotFound = errors.New("secret key not found")
	// ErrRepositoryNotFound is returned when a registry repository does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrLoadBalancerNotFound is returned when no load balancer has the requested name.
	ErrLoadBalancerNotFound = errors.New("load balancer not found")
)

// AWS error codes inspected through smithy.APIError.
const (
	codeResourceNotFound     = "ResourceNotFoundException"
	codeRepositoryNotFound   = "RepositoryNotFoundException"
	codeImageNotFound        = "ImageNotFoundException"
	codeLoadBalancerNotFound = "LoadBalancerNotFound"
)

func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// wrapAPIError adds operation context. Smithy errors are flattened to code and
// message so request payloads never reach the caller.
func wrapAPIError(operation string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s: %s", operation, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s: %w", operation, err)
}
