package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// LoadConfig loads the default AWS credential chain for region. vars, usually
// the merged environment, may carry AWS_PROFILE or static AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN values from env files that the
// process environment does not have.
func LoadConfig(ctx context.Context, region string, vars map[string]string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile := strings.TrimSpace(vars["AWS_PROFILE"]); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	keyID, secret := strings.TrimSpace(vars["AWS_ACCESS_KEY_ID"]), strings.TrimSpace(vars["AWS_SECRET_ACCESS_KEY"])
	if keyID != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, strings.TrimSpace(vars["AWS_SESSION_TOKEN"])),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// Clients bundles every AWS collaborator built from one aws.Config.
type Clients struct {
	Secrets   *SecretStore
	Registry  *ECRRegistry
	Discovery *Discovery
	Identity  *Identity
}

// NewClients constructs SDK clients for cfg.
func NewClients(cfg aws.Config, opts ...Option) *Clients {
	return &Clients{
		Secrets:   NewSecretStore(secretsmanager.NewFromConfig(cfg), opts...),
		Registry:  NewECRRegistry(ecr.NewFromConfig(cfg), opts...),
		Discovery: NewDiscovery(ec2.NewFromConfig(cfg), elbv2.NewFromConfig(cfg), opts...),
		Identity:  NewIdentity(sts.NewFromConfig(cfg)),
	}
}
