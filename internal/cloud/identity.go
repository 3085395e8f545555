package cloud

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CallerIdentity describes the credentials in use.
type CallerIdentity struct {
	AccountID string
	ARN       string
}

// Identity resolves the caller identity.
type Identity struct {
	api STSAPI
}

// NewIdentity wraps api.
func NewIdentity(api STSAPI) *Identity {
	return &Identity{api: api}
}

// CallerIdentity verifies that credentials are usable and returns the account.
func (i *Identity) CallerIdentity(ctx context.Context) (CallerIdentity, error) {
	out, err := i.api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return CallerIdentity{}, wrapAPIError("GetCallerIdentity", err)
	}
	return CallerIdentity{AccountID: aws.ToString(out.Account), ARN: aws.ToString(out.Arn)}, nil
}
