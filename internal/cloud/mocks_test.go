package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code + " raised by mock"}
}

type mockSecretsAPI struct {
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	deleteSecretFunc   func(ctx context.Context, params *secretsmanager.DeleteSecretInput) (*secretsmanager.DeleteSecretOutput, error)
}

func (m *mockSecretsAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if m.getSecretValueFunc != nil {
		return m.getSecretValueFunc(ctx, params)
	}
	return nil, fmt.Errorf("GetSecretValue not implemented")
}

func (m *mockSecretsAPI) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	if m.deleteSecretFunc != nil {
		return m.deleteSecretFunc(ctx, params)
	}
	return nil, fmt.Errorf("DeleteSecret not implemented")
}

type mockECRAPI struct {
	describeImagesFunc        func(ctx context.Context, params *ecr.DescribeImagesInput) (*ecr.DescribeImagesOutput, error)
	deleteRepositoryFunc      func(ctx context.Context, params *ecr.DeleteRepositoryInput) (*ecr.DeleteRepositoryOutput, error)
	getAuthorizationTokenFunc func(ctx context.Context, params *ecr.GetAuthorizationTokenInput) (*ecr.GetAuthorizationTokenOutput, error)
}

func (m *mockECRAPI) DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, _ ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error) {
	if m.describeImagesFunc != nil {
		return m.describeImagesFunc(ctx, params)
	}
	return nil, fmt.Errorf("DescribeImages not implemented")
}

func (m *mockECRAPI) DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, _ ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error) {
	if m.deleteRepositoryFunc != nil {
		return m.deleteRepositoryFunc(ctx, params)
	}
	return nil, fmt.Errorf("DeleteRepository not implemented")
}

func (m *mockECRAPI) GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, _ ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error) {
	if m.getAuthorizationTokenFunc != nil {
		return m.getAuthorizationTokenFunc(ctx, params)
	}
	return nil, fmt.Errorf("GetAuthorizationToken not implemented")
}

type mockEC2API struct {
	describeInstancesFunc func(ctx context.Context, params *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
}

func (m *mockEC2API) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.describeInstancesFunc != nil {
		return m.describeInstancesFunc(ctx, params)
	}
	return nil, fmt.Errorf("DescribeInstances not implemented")
}

type mockELBAPI struct {
	describeLoadBalancersFunc func(ctx context.Context, params *elbv2.DescribeLoadBalancersInput) (*elbv2.DescribeLoadBalancersOutput, error)
}

func (m *mockELBAPI) DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	if m.describeLoadBalancersFunc != nil {
		return m.describeLoadBalancersFunc(ctx, params)
	}
	return nil, fmt.Errorf("DescribeLoadBalancers not implemented")
}

type mockSTSAPI struct {
	getCallerIdentityFunc func(ctx context.Context) (*sts.GetCallerIdentityOutput, error)
}

func (m *mockSTSAPI) GetCallerIdentity(ctx context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if m.getCallerIdentityFunc != nil {
		return m.getCallerIdentityFunc(ctx)
	}
	return nil, fmt.Errorf("GetCallerIdentity not implemented")
}
