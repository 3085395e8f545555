package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)

	DeleteSecret(
		ctx context.Context,
		params *secretsmanager.DeleteSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DeleteSecretOutput, error)
}

// SecretRef is a read-only handle into the secret store.
type SecretRef struct {
	// Name is the logical name used in logs (e.g. the build argument).
	Name string
	// ID is the store key: secret name or ARN.
	ID string
	// Key selects a field when the secret holds a JSON object.
	Key string
}

// SecretStore reads and deletes secrets. Values are returned to the caller only;
// nothing is cached.
type SecretStore struct {
	api    SecretsManagerAPI
	logger *slog.Logger
}

// NewSecretStore wraps api.
func NewSecretStore(api SecretsManagerAPI, opts ...Option) *SecretStore {
	o := applyOptions(opts)
	return &SecretStore{api: api, logger: o.logger}
}

// Get retrieves the secret value for ref.
func (s *SecretStore) Get(ctx context.Context, ref SecretRef) (string, error) {
	if strings.TrimSpace(ref.ID) == "" {
		return "", fmt.Errorf("secret id cannot be empty")
	}
	s.logger.DebugContext(ctx, "retrieving secret", "name", ref.Name, "secret_id", ref.ID)

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref.ID)})
	if err != nil {
		if errorCode(err) == codeResourceNotFound {
			return "", fmt.Errorf("get secret %q: %w", ref.ID, ErrSecretNotFound)
		}
		return "", wrapAPIError("GetSecretValue", err)
	}

	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("get secret %q: %w", ref.ID, ErrSecretEmpty)
	}
	if ref.Key == "" {
		return value, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(value), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object; cannot select key %q", ref.ID, ref.Key)
	}
	field, ok := fields[ref.Key]
	if !ok {
		return "", fmt.Errorf("secret %q key %q: %w", ref.ID, ref.Key, ErrSecretKeyNotFound)
	}
	str, ok := field.(string)
	if !ok {
		str = fmt.Sprint(field)
	}
	if str == "" {
		return "", fmt.Errorf("secret %q key %q: %w", ref.ID, ref.Key, ErrSecretEmpty)
	}
	return str, nil
}

// Delete removes a secret immediately, without a recovery window.
// It returns ErrSecretNotFound when the secret is already gone.
func (s *SecretStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("secret id cannot be empty")
	}
	s.logger.InfoContext(ctx, "deleting secret", "secret_id", id)

	_, err := s.api.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(id),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		if errorCode(err) == codeResourceNotFound {
			return fmt.Errorf("delete secret %q: %w", id, ErrSecretNotFound)
		}
		return wrapAPIError("DeleteSecret", err)
	}
	return nil
}
