// Package awsnet implements the network client interfaces on top of the
// AWS EC2 and Organizations APIs. Hub routing calls run with the hub
// account's credentials, spoke reads and writes with a role assumed in the
// spoke account.
package awsnet

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// liveAttachmentStates filter attachment lookups to attachments that are
// not on their way out.
var liveAttachmentStates = []string{
	string(domain.AttachmentAvailable),
	string(domain.AttachmentPending),
	string(domain.AttachmentModifying),
}

// Client talks to one spoke account and region plus the shared hub.
type Client struct {
	spoke *ec2.Client
	hub   *ec2.Client
	org   *organizations.Client
}

var _ network.Client = (*Client)(nil)

func filter(name string, values ...string) ec2types.Filter {
	return ec2types.Filter{Name: aws.String(name), Values: values}
}

func fromEC2Tags(tags []ec2types.Tag) domain.Tags {
	out := make(domain.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, domain.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}

func toEC2Tags(tags []domain.Tag) []ec2types.Tag {
	out := make([]ec2types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, ec2types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

func fromVPCAttachment(a ec2types.TransitGatewayVpcAttachment) *domain.Attachment {
	return &domain.Attachment{
		ID:        aws.ToString(a.TransitGatewayAttachmentId),
		State:     domain.AttachmentState(a.State),
		VPCID:     aws.ToString(a.VpcId),
		OwnerID:   aws.ToString(a.VpcOwnerId),
		SubnetIDs: a.SubnetIds,
		Tags:      fromEC2Tags(a.Tags),
	}
}

// FindAttachment implements network.AttachmentAPI.
func (c *Client) FindAttachment(ctx context.Context, hubID, vpcID string) (*domain.Attachment, error) {
	out, err := c.spoke.DescribeTransitGatewayVpcAttachments(ctx, &ec2.DescribeTransitGatewayVpcAttachmentsInput{
		Filters: []ec2types.Filter{
			filter("transit-gateway-id", hubID),
			filter("vpc-id", vpcID),
			filter("state", liveAttachmentStates...),
		},
	})
	if err != nil {
		return nil, classify("describe attachments", err)
	}
	if len(out.TransitGatewayVpcAttachments) == 0 {
		return nil, nil
	}
	return fromVPCAttachment(out.TransitGatewayVpcAttachments[0]), nil
}

// DescribeAttachment implements network.AttachmentAPI. The generic describe
// call is the one that carries the current route table association.
func (c *Client) DescribeAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, error) {
	out, err := c.hub.DescribeTransitGatewayAttachments(ctx, &ec2.DescribeTransitGatewayAttachmentsInput{
		TransitGatewayAttachmentIds: []string{attachmentID},
	})
	if err != nil {
		err = classify("describe attachment", err)
		if domain.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(out.TransitGatewayAttachments) == 0 {
		return nil, nil
	}
	a := out.TransitGatewayAttachments[0]
	att := &domain.Attachment{
		ID:      aws.ToString(a.TransitGatewayAttachmentId),
		State:   domain.AttachmentState(a.State),
		VPCID:   aws.ToString(a.ResourceId),
		OwnerID: aws.ToString(a.ResourceOwnerId),
		Tags:    fromEC2Tags(a.Tags),
	}
	if a.Association != nil {
		att.AssociatedRouteTableID = aws.ToString(a.Association.TransitGatewayRouteTableId)
		att.AssociationState = domain.AssociationState(a.Association.State)
	}
	return att, nil
}

// AttachmentState implements network.AttachmentAPI.
func (c *Client) AttachmentState(ctx context.Context, attachmentID string) (domain.AttachmentState, error) {
	out, err := c.spoke.DescribeTransitGatewayVpcAttachments(ctx, &ec2.DescribeTransitGatewayVpcAttachmentsInput{
		TransitGatewayAttachmentIds: []string{attachmentID},
	})
	if err != nil {
		err = classify("describe attachment state", err)
		if domain.IsNotFound(err) {
			return domain.AttachmentDeleted, nil
		}
		return "", err
	}
	if len(out.TransitGatewayVpcAttachments) == 0 {
		return domain.AttachmentDeleted, nil
	}
	return domain.AttachmentState(out.TransitGatewayVpcAttachments[0].State), nil
}

// CreateAttachment implements network.AttachmentAPI.
func (c *Client) CreateAttachment(ctx context.Context, hubID, vpcID, subnetID string) (*domain.Attachment, error) {
	out, err := c.spoke.CreateTransitGatewayVpcAttachment(ctx, &ec2.CreateTransitGatewayVpcAttachmentInput{
		TransitGatewayId: aws.String(hubID),
		VpcId:            aws.String(vpcID),
		SubnetIds:        []string{subnetID},
	})
	if err != nil {
		return nil, classify("create attachment", err)
	}
	return fromVPCAttachment(*out.TransitGatewayVpcAttachment), nil
}

// AddSubnet implements network.AttachmentAPI.
func (c *Client) AddSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, network.Conflict, error) {
	out, err := c.spoke.ModifyTransitGatewayVpcAttachment(ctx, &ec2.ModifyTransitGatewayVpcAttachmentInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
		AddSubnetIds:               []string{subnetID},
	})
	if err != nil {
		if conflict, ok := conflictOf(err); ok {
			return "", conflict, nil
		}
		return "", network.ConflictNone, classify("add subnet", err)
	}
	return domain.AttachmentState(out.TransitGatewayVpcAttachment.State), network.ConflictNone, nil
}

// RemoveSubnet implements network.AttachmentAPI.
func (c *Client) RemoveSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, network.Conflict, error) {
	out, err := c.spoke.ModifyTransitGatewayVpcAttachment(ctx, &ec2.ModifyTransitGatewayVpcAttachmentInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
		RemoveSubnetIds:            []string{subnetID},
	})
	if err != nil {
		if conflict, ok := conflictOf(err); ok {
			return "", conflict, nil
		}
		return "", network.ConflictNone, classify("remove subnet", err)
	}
	return domain.AttachmentState(out.TransitGatewayVpcAttachment.State), network.ConflictNone, nil
}

// DeleteAttachment implements network.AttachmentAPI.
func (c *Client) DeleteAttachment(ctx context.Context, attachmentID string) (domain.AttachmentState, error) {
	out, err := c.spoke.DeleteTransitGatewayVpcAttachment(ctx, &ec2.DeleteTransitGatewayVpcAttachmentInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	if err != nil {
		err = classify("delete attachment", err)
		if domain.IsNotFound(err) {
			return domain.AttachmentDeleted, nil
		}
		return "", err
	}
	return domain.AttachmentState(out.TransitGatewayVpcAttachment.State), nil
}

// HubRouteTables implements network.RoutingAPI.
func (c *Client) HubRouteTables(ctx context.Context, hubID string) ([]domain.HubRouteTable, error) {
	var tables []domain.HubRouteTable
	p := ec2.NewDescribeTransitGatewayRouteTablesPaginator(c.hub, &ec2.DescribeTransitGatewayRouteTablesInput{
		Filters: []ec2types.Filter{filter("transit-gateway-id", hubID)},
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("describe hub route tables", err)
		}
		for _, rt := range page.TransitGatewayRouteTables {
			tables = append(tables, domain.HubRouteTable{
				ID:   aws.ToString(rt.TransitGatewayRouteTableId),
				Tags: fromEC2Tags(rt.Tags),
			})
		}
	}
	return tables, nil
}

// AssociateRouteTable implements network.RoutingAPI.
func (c *Client) AssociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error) {
	out, err := c.hub.AssociateTransitGatewayRouteTable(ctx, &ec2.AssociateTransitGatewayRouteTableInput{
		TransitGatewayRouteTableId: aws.String(routeTableID),
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	if err != nil {
		return "", classify("associate route table", err)
	}
	return domain.AssociationState(out.Association.State), nil
}

// DisassociateRouteTable implements network.RoutingAPI.
func (c *Client) DisassociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error) {
	out, err := c.hub.DisassociateTransitGatewayRouteTable(ctx, &ec2.DisassociateTransitGatewayRouteTableInput{
		TransitGatewayRouteTableId: aws.String(routeTableID),
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	if err != nil {
		return "", classify("disassociate route table", err)
	}
	return domain.AssociationState(out.Association.State), nil
}

// AssociationState implements network.RoutingAPI. The API returns nothing
// once an association is fully gone, which reads as disassociated.
func (c *Client) AssociationState(ctx context.Context, routeTableID, attachmentID, vpcID string) (domain.AssociationState, error) {
	out, err := c.hub.GetTransitGatewayRouteTableAssociations(ctx, &ec2.GetTransitGatewayRouteTableAssociationsInput{
		TransitGatewayRouteTableId: aws.String(routeTableID),
		Filters: []ec2types.Filter{
			filter("transit-gateway-attachment-id", attachmentID),
			filter("resource-id", vpcID),
		},
	})
	if err != nil {
		return "", classify("get association state", err)
	}
	if len(out.Associations) == 0 {
		return domain.AssociationDisassociated, nil
	}
	return domain.AssociationState(out.Associations[0].State), nil
}

// AttachmentPropagations implements network.RoutingAPI.
func (c *Client) AttachmentPropagations(ctx context.Context, attachmentID string) ([]string, error) {
	var tables []string
	p := ec2.NewGetTransitGatewayAttachmentPropagationsPaginator(c.hub, &ec2.GetTransitGatewayAttachmentPropagationsInput{
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("get attachment propagations", err)
		}
		for _, prop := range page.TransitGatewayAttachmentPropagations {
			tables = append(tables, aws.ToString(prop.TransitGatewayRouteTableId))
		}
	}
	return tables, nil
}

// EnablePropagation implements network.RoutingAPI.
func (c *Client) EnablePropagation(ctx context.Context, routeTableID, attachmentID string) (network.Conflict, error) {
	_, err := c.hub.EnableTransitGatewayRouteTablePropagation(ctx, &ec2.EnableTransitGatewayRouteTablePropagationInput{
		TransitGatewayRouteTableId: aws.String(routeTableID),
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	if err != nil {
		if conflict, ok := conflictOf(err); ok {
			return conflict, nil
		}
		return network.ConflictNone, classify("enable propagation", err)
	}
	return network.ConflictNone, nil
}

// DisablePropagation implements network.RoutingAPI.
func (c *Client) DisablePropagation(ctx context.Context, routeTableID, attachmentID string) (network.Conflict, error) {
	_, err := c.hub.DisableTransitGatewayRouteTablePropagation(ctx, &ec2.DisableTransitGatewayRouteTablePropagationInput{
		TransitGatewayRouteTableId: aws.String(routeTableID),
		TransitGatewayAttachmentId: aws.String(attachmentID),
	})
	if err != nil {
		if conflict, ok := conflictOf(err); ok {
			return conflict, nil
		}
		return network.ConflictNone, classify("disable propagation", err)
	}
	return network.ConflictNone, nil
}

// DescribeVPC implements network.SpokeAPI.
func (c *Client) DescribeVPC(ctx context.Context, vpcID string) (*domain.VPC, error) {
	out, err := c.spoke.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return nil, classify("describe vpc", err)
	}
	if len(out.Vpcs) == 0 {
		return nil, classify("describe vpc", domain.ErrResourceNotFound)
	}
	vpc := out.Vpcs[0]
	return &domain.VPC{
		ID:        aws.ToString(vpc.VpcId),
		CidrBlock: aws.ToString(vpc.CidrBlock),
		Tags:      fromEC2Tags(vpc.Tags),
	}, nil
}

// DescribeSubnet implements network.SpokeAPI.
func (c *Client) DescribeSubnet(ctx context.Context, subnetID string) (*domain.Subnet, error) {
	out, err := c.spoke.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{subnetID}})
	if err != nil {
		return nil, classify("describe subnet", err)
	}
	if len(out.Subnets) == 0 {
		return nil, classify("describe subnet", domain.ErrResourceNotFound)
	}
	subnet := out.Subnets[0]
	return &domain.Subnet{
		ID:               aws.ToString(subnet.SubnetId),
		VPCID:            aws.ToString(subnet.VpcId),
		AvailabilityZone: aws.ToString(subnet.AvailabilityZone),
		Tags:             fromEC2Tags(subnet.Tags),
	}, nil
}

func fromRouteTable(rt ec2types.RouteTable, main bool) *domain.SpokeRouteTable {
	table := &domain.SpokeRouteTable{ID: aws.ToString(rt.RouteTableId), Main: main}
	for _, r := range rt.Routes {
		table.Routes = append(table.Routes, domain.Route{
			DestinationCidr:         aws.ToString(r.DestinationCidrBlock),
			DestinationPrefixListID: aws.ToString(r.DestinationPrefixListId),
			TransitGatewayID:        aws.ToString(r.TransitGatewayId),
			GatewayID:               aws.ToString(r.GatewayId),
			NatGatewayID:            aws.ToString(r.NatGatewayId),
			VPCPeeringConnectionID:  aws.ToString(r.VpcPeeringConnectionId),
		})
	}
	return table
}

// SubnetRouteTable implements network.SpokeAPI. A subnet with no explicit
// association falls back to the VPC's main route table.
func (c *Client) SubnetRouteTable(ctx context.Context, subnetID, vpcID string) (*domain.SpokeRouteTable, error) {
	out, err := c.spoke.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{filter("association.subnet-id", subnetID)},
	})
	if err != nil {
		return nil, classify("describe subnet route table", err)
	}
	if len(out.RouteTables) > 0 {
		return fromRouteTable(out.RouteTables[0], false), nil
	}

	out, err = c.spoke.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			filter("vpc-id", vpcID),
			filter("association.main", "true"),
		},
	})
	if err != nil {
		return nil, classify("describe main route table", err)
	}
	if len(out.RouteTables) == 0 {
		return nil, classify("describe main route table", domain.ErrResourceNotFound)
	}
	return fromRouteTable(out.RouteTables[0], true), nil
}

// CreateRoute implements network.SpokeAPI.
func (c *Client) CreateRoute(ctx context.Context, routeTableID, destination, hubID string) error {
	input := &ec2.CreateRouteInput{
		RouteTableId:     aws.String(routeTableID),
		TransitGatewayId: aws.String(hubID),
	}
	if domain.IsPrefixListID(destination) {
		input.DestinationPrefixListId = aws.String(destination)
	} else {
		input.DestinationCidrBlock = aws.String(destination)
	}
	if _, err := c.spoke.CreateRoute(ctx, input); err != nil {
		err = classify("create route", err)
		if domain.IsAlreadyConfigured(err) {
			return nil
		}
		return err
	}
	return nil
}

// DeleteRoute implements network.SpokeAPI. A route that is already gone is
// treated as deleted.
func (c *Client) DeleteRoute(ctx context.Context, routeTableID, destination string) error {
	input := &ec2.DeleteRouteInput{RouteTableId: aws.String(routeTableID)}
	if domain.IsPrefixListID(destination) {
		input.DestinationPrefixListId = aws.String(destination)
	} else {
		input.DestinationCidrBlock = aws.String(destination)
	}
	if _, err := c.spoke.DeleteRoute(ctx, input); err != nil {
		if apiErrorCode(err) == codeRouteNotFound {
			return nil
		}
		return classify("delete route", err)
	}
	return nil
}

// CreateTags implements network.TagAPI.
func (c *Client) CreateTags(ctx context.Context, scope network.Scope, resourceID string, tags ...domain.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	client := c.spoke
	if scope == network.ScopeHub {
		client = c.hub
	}
	_, err := client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{resourceID},
		Tags:      toEC2Tags(tags),
	})
	return classify("create tags", err)
}
