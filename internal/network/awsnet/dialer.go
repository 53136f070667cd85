package awsnet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// Dialer builds per-spoke network clients. Hub routing calls always use the
// base credentials; spoke calls assume the execution role in the event's
// account, except when the event originates in the hub account itself.
type Dialer struct {
	base          aws.Config
	hubAccountID  string
	hubRegion     string
	spokeRoleName string
	orgRoleARN    string
}

var _ network.Dialer = (*Dialer)(nil)

// NewDialer loads the ambient credential chain and resolves the hub account
// id so Dial can skip role assumption for hub-local spokes.
func NewDialer(ctx context.Context, hub config.HubConfig) (*Dialer, error) {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(hub.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	ident, err := sts.NewFromConfig(base).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("resolve hub account: %w", err)
	}
	return &Dialer{
		base:          base,
		hubAccountID:  aws.ToString(ident.Account),
		hubRegion:     hub.Region,
		spokeRoleName: hub.SpokeRoleName,
		orgRoleARN:    hub.OrgRoleARN,
	}, nil
}

// Dial implements network.Dialer.
func (d *Dialer) Dial(ctx context.Context, account, region string) (network.Client, error) {
	spokeCfg := d.base.Copy()
	spokeCfg.Region = region
	if account != d.hubAccountID {
		roleARN := fmt.Sprintf("arn:aws:iam::%s:role/%s", account, d.spokeRoleName)
		spokeCfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(d.base), roleARN),
		)
	}

	hubCfg := d.base.Copy()
	hubCfg.Region = d.hubRegion

	orgCfg := d.base.Copy()
	if d.orgRoleARN != "" {
		orgCfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(d.base), d.orgRoleARN),
		)
	}

	return &Client{
		spoke: ec2.NewFromConfig(spokeCfg),
		hub:   ec2.NewFromConfig(hubCfg),
		org:   organizations.NewFromConfig(orgCfg),
	}, nil
}
