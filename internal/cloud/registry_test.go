package cloud

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECRImageExists(t *testing.T) {
	api := &mockECRAPI{
		describeImagesFunc: func(_ context.Context, params *ecr.DescribeImagesInput) (*ecr.DescribeImagesOutput, error) {
			require.Len(t, params.ImageIds, 1)
			switch aws.ToString(params.ImageIds[0].ImageTag) {
			case "present":
				return &ecr.DescribeImagesOutput{ImageDetails: []ecrtypes.ImageDetail{{ImageTags: []string{"present"}}}}, nil
			case "norepo":
				return nil, apiError(codeRepositoryNotFound)
			case "throttled":
				return nil, apiError("ThrottlingException")
			default:
				return nil, apiError(codeImageNotFound)
			}
		},
	}
	reg := NewECRRegistry(api)
	ctx := context.Background()

	ok, err := reg.ImageExists(ctx, "rstudio", "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.ImageExists(ctx, "rstudio", "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = reg.ImageExists(ctx, "rstudio", "norepo")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.ImageExists(ctx, "rstudio", "throttled")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ThrottlingException")
}

func TestECRCredentials(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("AWS:ecr-password"))
	api := &mockECRAPI{
		getAuthorizationTokenFunc: func(context.Context, *ecr.GetAuthorizationTokenInput) (*ecr.GetAuthorizationTokenOutput, error) {
			return &ecr.GetAuthorizationTokenOutput{AuthorizationData: []ecrtypes.AuthorizationData{{
				AuthorizationToken: aws.String(token),
				ProxyEndpoint:      aws.String("https://123456789012.dkr.ecr.us-east-1.amazonaws.com"),
			}}}, nil
		},
	}

	creds, err := NewECRRegistry(api).Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RegistryCredentials{
		Host:     "123456789012.dkr.ecr.us-east-1.amazonaws.com",
		Username: "AWS",
		Password: "ecr-password",
	}, creds)
	assert.Equal(t, creds.Host, Host("123456789012", "us-east-1"))
}

func TestECRDeleteRepository(t *testing.T) {
	api := &mockECRAPI{
		deleteRepositoryFunc: func(_ context.Context, params *ecr.DeleteRepositoryInput) (*ecr.DeleteRepositoryOutput, error) {
			assert.True(t, params.Force)
			if aws.ToString(params.RepositoryName) == "rstudio" {
				return &ecr.DeleteRepositoryOutput{}, nil
			}
			return nil, apiError(codeRepositoryNotFound)
		},
	}
	reg := NewECRRegistry(api)

	require.NoError(t, reg.DeleteRepository(context.Background(), "rstudio", true))
	assert.ErrorIs(t, reg.DeleteRepository(context.Background(), "gone", true), ErrRepositoryNotFound)
}

func TestOCICheckerResolvesTags(t *testing.T) {
	manifest := []byte(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json"}`)
	sum := sha256.Sum256(manifest)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/rstudio/manifests/2025.09":
			w.Header().Set("Content-Type", "application/vnd.oci.image.manifest.v1+json")
			w.Header().Set("Docker-Content-Digest", digest)
			w.Header().Set("Content-Length", strconv.Itoa(len(manifest)))
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				_, _ = w.Write(manifest)
			}
		case strings.HasPrefix(r.URL.Path, "/v2/rstudio/manifests/"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	checker := NewOCIChecker(host, nil).WithPlainHTTP(true)

	ok, err := checker.ImageExists(context.Background(), "rstudio", "2025.09")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.ImageExists(context.Background(), "rstudio", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = checker.ImageExists(context.Background(), "other", "x")
	require.Error(t, err)
}
