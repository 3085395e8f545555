package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
)

// EC2API is the subset of the EC2 client used for instance discovery.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// ELBv2API is the subset of the ELBv2 client used for load balancer discovery.
type ELBv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
}

// Discovery looks up DNS names of deployed compute and load balancers.
type Discovery struct {
	ec2    EC2API
	elb    ELBv2API
	logger *slog.Logger
}

// NewDiscovery wraps the EC2 and ELBv2 clients.
func NewDiscovery(ec2API EC2API, elbAPI ELBv2API, opts ...Option) *Discovery {
	o := applyOptions(opts)
	return &Discovery{ec2: ec2API, elb: elbAPI, logger: o.logger}
}

// InstanceDNSNames returns DNS names of running instances tagged key=value.
// Public names are preferred; instances without one report their private name.
func (d *Discovery) InstanceDNSNames(ctx context.Context, key, value string) ([]string, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:" + key), Values: []string{value}},
			{Name: aws.String("instance-state-name"), Values: []string{"running"}},
		},
	}

	var names []string
	paginator := ec2.NewDescribeInstancesPaginator(d.ec2, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapAPIError("DescribeInstances", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				name := aws.ToString(inst.PublicDnsName)
				if name == "" {
					name = aws.ToString(inst.PrivateDnsName)
				}
				if name != "" {
					names = append(names, name)
				}
			}
		}
	}
	return names, nil
}

// LoadBalancerDNSName resolves a load balancer name to its DNS name.
func (d *Discovery) LoadBalancerDNSName(ctx context.Context, name string) (string, error) {
	out, err := d.elb.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{Names: []string{name}})
	if err != nil {
		if errorCode(err) == codeLoadBalancerNotFound {
			return "", fmt.Errorf("load balancer %q: %w", name, ErrLoadBalancerNotFound)
		}
		return "", wrapAPIError("DescribeLoadBalancers", err)
	}
	for _, lb := range out.LoadBalancers {
		if dns := aws.ToString(lb.DNSName); dns != "" {
			return dns, nil
		}
	}
	return "", fmt.Errorf("load balancer %q: %w", name, ErrLoadBalancerNotFound)
}
