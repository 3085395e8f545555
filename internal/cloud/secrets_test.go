package cloud

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStoreGet(t *testing.T) {
	api := &mockSecretsAPI{
		getSecretValueFunc: func(_ context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
			switch aws.ToString(params.SecretId) {
			case "plain":
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("pa55")}, nil
			case "json":
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"username":"rstudio","password":"s3cr3t"}`)}, nil
			case "empty":
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("")}, nil
			default:
				return nil, apiError(codeResourceNotFound)
			}
		},
	}
	var logs bytes.Buffer
	store := NewSecretStore(api, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	ctx := context.Background()

	v, err := store.Get(ctx, SecretRef{Name: "PASSWORD", ID: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "pa55", v)

	v, err = store.Get(ctx, SecretRef{Name: "PASSWORD", ID: "json", Key: "password"})
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	_, err = store.Get(ctx, SecretRef{ID: "json", Key: "missing"})
	assert.ErrorIs(t, err, ErrSecretKeyNotFound)

	_, err = store.Get(ctx, SecretRef{ID: "plain", Key: "password"})
	require.Error(t, err)

	_, err = store.Get(ctx, SecretRef{ID: "empty"})
	assert.ErrorIs(t, err, ErrSecretEmpty)

	_, err = store.Get(ctx, SecretRef{ID: "ghost"})
	assert.ErrorIs(t, err, ErrSecretNotFound)

	_, err = store.Get(ctx, SecretRef{})
	require.Error(t, err)

	assert.NotContains(t, logs.String(), "s3cr3t")
	assert.NotContains(t, logs.String(), "pa55")
}

func TestSecretStoreDelete(t *testing.T) {
	var forced []bool
	api := &mockSecretsAPI{
		deleteSecretFunc: func(_ context.Context, params *secretsmanager.DeleteSecretInput) (*secretsmanager.DeleteSecretOutput, error) {
			forced = append(forced, aws.ToBool(params.ForceDeleteWithoutRecovery))
			switch aws.ToString(params.SecretId) {
			case "present":
				return &secretsmanager.DeleteSecretOutput{}, nil
			case "denied":
				return nil, apiError("AccessDeniedException")
			default:
				return nil, apiError(codeResourceNotFound)
			}
		},
	}
	store := NewSecretStore(api)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "present"))

	err := store.Delete(ctx, "absent")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	err = store.Delete(ctx, "denied")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSecretNotFound))
	assert.Contains(t, err.Error(), "AccessDeniedException")

	assert.Equal(t, []bool{true, true, true}, forced)
}
