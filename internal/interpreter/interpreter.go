// Package interpreter turns tag-change and admin-decision events into fresh
// reconciliation contexts: it identifies the resource, reads the current tag
// intent from the spoke, and enriches the context with account detail from
// the organization.
package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// Attachment tag keys written onto the attachment during labeling.
const (
	tagAccountName = "account-name"
	tagAccountOU   = "account-ou"
	tagVPCName     = "vpc-name"
	tagName        = "Name"
)

// Interpreter builds reconciliation contexts from inbound events.
type Interpreter struct {
	tags config.TagConfig
	log  zerolog.Logger
}

// New creates an interpreter reading the configured tag keys.
func New(tags config.TagConfig, log zerolog.Logger) *Interpreter {
	return &Interpreter{tags: tags, log: log.With().Str("component", "interpreter").Logger()}
}

// Interpret builds the context for a tag-change event. The client must be
// dialed for the event's account and region. A subnet or VPC that vanished
// between the event and the describe call is interpreted as a detach.
func (i *Interpreter) Interpret(ctx context.Context, client network.Client, ev domain.TagChangeEvent) (*domain.ReconciliationContext, error) {
	c := &domain.ReconciliationContext{
		ExecutionID: uuid.NewString(),
		Account:     ev.Account,
		Region:      ev.Region,
		EventTime:   ev.Time,
	}

	resourceID := ev.ResourceID()
	switch {
	case strings.HasPrefix(resourceID, "subnet-"):
		c.EventSource = domain.EventSourceSubnet
		c.SubnetID = resourceID
		if err := i.readSubnet(ctx, client, c, ev); err != nil {
			return nil, err
		}
	case strings.HasPrefix(resourceID, "vpc-"):
		c.EventSource = domain.EventSourceVPC
		c.VPCID = resourceID
	default:
		return nil, fmt.Errorf("%w: unsupported resource %q", domain.ErrInvalidInput, resourceID)
	}

	if c.VPCID != "" {
		if err := i.readVPC(ctx, client, c, ev); err != nil {
			return nil, err
		}
	}
	if err := i.enrich(ctx, client, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (i *Interpreter) readSubnet(ctx context.Context, client network.SpokeAPI, c *domain.ReconciliationContext, ev domain.TagChangeEvent) error {
	subnet, err := client.DescribeSubnet(ctx, c.SubnetID)
	if err != nil {
		if domain.IsNotFound(err) {
			// Deleted subnets are reconciled out of the attachment using the
			// VPC id carried by the event's tag snapshot.
			i.log.Info().Str("subnet", c.SubnetID).Msg("subnet gone, interpreting as detach")
			c.SubnetTagFound = false
			return nil
		}
		return err
	}
	c.VPCID = subnet.VPCID
	c.AvailabilityZone = subnet.AvailabilityZone
	c.SubnetTagFound = subnet.Tags.Has(i.tags.Attachment)
	return nil
}

func (i *Interpreter) readVPC(ctx context.Context, client network.SpokeAPI, c *domain.ReconciliationContext, ev domain.TagChangeEvent) error {
	vpc, err := client.DescribeVPC(ctx, c.VPCID)
	if err != nil {
		if domain.IsNotFound(err) && c.EventSource == domain.EventSourceVPC {
			i.log.Info().Str("vpc", c.VPCID).Msg("vpc gone, nothing to reconcile")
			c.VPCTagFound = false
			return nil
		}
		return err
	}
	c.VPCCidr = vpc.CidrBlock
	if name, ok := vpc.Tags.Get(tagName); ok {
		c.VPCName = name
	}

	if v, ok := vpc.Tags.Get(i.tags.Association); ok {
		c.AssociateWith = domain.NormalizeTagValue(v)
		c.VPCTagFound = true
	}
	if v, ok := vpc.Tags.Get(i.tags.Propagation); ok {
		c.PropagateTo = domain.SplitTagValueList(v)
		c.VPCTagFound = true
	}
	c.RouteToHub = i.routeIntent(vpc.Tags, ev)

	for _, key := range i.tags.CopyToAttachmentKeys() {
		if v, ok := vpc.Tags.Get(key); ok {
			c.RequireAttachmentTag(key, v)
		}
	}
	return nil
}

// routeIntent derives the default-route intent from the VPC routing tag: a
// present tag asks for routes, and a removal recorded in the changed keys
// asks for cleanup.
func (i *Interpreter) routeIntent(tags domain.Tags, ev domain.TagChangeEvent) domain.RouteIntent {
	if tags.Has(i.tags.Routing) {
		return domain.RouteIntentCreate
	}
	key := domain.NormalizeTagKey(i.tags.Routing)
	for _, changed := range ev.Detail.ChangedTagKeys {
		if domain.NormalizeTagKey(changed) == key {
			return domain.RouteIntentDelete
		}
	}
	return domain.RouteIntentNone
}

// enrich resolves organization detail and assembles the attachment labels.
// Lookups degrade to the raw account id when the organization denies them.
func (i *Interpreter) enrich(ctx context.Context, org network.OrgAPI, c *domain.ReconciliationContext) error {
	name, err := org.AccountName(ctx, c.Account)
	if err != nil {
		return err
	}
	c.AccountName = name

	ouPath, err := org.AccountOUPath(ctx, c.Account)
	if err != nil {
		return err
	}
	c.AccountOUPath = ouPath

	if c.AccountName != "" {
		c.RequireAttachmentTag(tagAccountName, c.AccountName)
	}
	if c.AccountOUPath != "" {
		c.RequireAttachmentTag(tagAccountOU, c.AccountOUPath)
	}
	if c.VPCName != "" {
		c.RequireAttachmentTag(tagVPCName, c.VPCName)
	}

	owner := c.AccountName
	if owner == "" {
		owner = c.Account
	}
	vpcLabel := c.VPCName
	if vpcLabel == "" {
		vpcLabel = c.VPCID
	}
	c.RequireAttachmentTag(tagName, fmt.Sprintf("%s-%s", owner, vpcLabel))
	return nil
}

// InterpretAdminDecision builds the context for an operator decision: the
// recorded desired state is replayed with the decision attached, so the same
// workflow path applies or withholds the change.
func (i *Interpreter) InterpretAdminDecision(ctx context.Context, client network.Client, ev domain.AdminDecisionEvent) (*domain.ReconciliationContext, error) {
	if ev.Action != domain.AdminActionAccept && ev.Action != domain.AdminActionReject {
		return nil, fmt.Errorf("%w: admin action %q", domain.ErrInvalidInput, ev.Action)
	}
	c := &domain.ReconciliationContext{
		ExecutionID:   uuid.NewString(),
		Account:       ev.SpokeAccountID,
		Region:        ev.Region,
		EventSource:   ev.EventSource,
		AdminAction:   ev.Action,
		UserID:        ev.UserID,
		VPCID:         ev.VPCID,
		SubnetID:      ev.SubnetID,
		AssociateWith: ev.AssociationRouteTable,
		PropagateTo:   ev.PropagationRouteTables,
	}

	if c.SubnetID != "" {
		subnet, err := client.DescribeSubnet(ctx, c.SubnetID)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		if subnet != nil {
			c.VPCID = subnet.VPCID
			c.AvailabilityZone = subnet.AvailabilityZone
			c.SubnetTagFound = subnet.Tags.Has(i.tags.Attachment)
		}
	}
	if c.VPCID != "" {
		vpc, err := client.DescribeVPC(ctx, c.VPCID)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		if vpc != nil {
			c.VPCCidr = vpc.CidrBlock
			if name, ok := vpc.Tags.Get(tagName); ok {
				c.VPCName = name
			}
			c.VPCTagFound = vpc.Tags.Has(i.tags.Association) || vpc.Tags.Has(i.tags.Propagation)
		}
	}
	if err := i.enrich(ctx, client, c); err != nil {
		return nil, err
	}
	return c, nil
}
