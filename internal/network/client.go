// Package network defines the client boundary to the hub router and spoke
// account APIs. Reconcilers depend on these interfaces only; the real
// implementation lives in awsnet and an in-memory fabric for tests in
// memorynet.
package network

import (
	"context"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
)

// Conflict is a structured conflict returned by a hub write in place of a
// hard failure. Reconcilers use it for flow control: a busy resource becomes
// a retryable error, the last-subnet conflict becomes a delete action.
type Conflict string

const (
	ConflictNone Conflict = ""

	// ConflictIncorrectState signals a concurrent modification in flight on
	// the same attachment.
	ConflictIncorrectState Conflict = "IncorrectState"

	// ConflictLastSubnet signals an attempt to remove the only remaining
	// subnet of an attachment.
	ConflictLastSubnet Conflict = "InsufficientSubnets"

	// ConflictDuplicateSubnetZone signals a second subnet in an availability
	// zone already represented in the attachment.
	ConflictDuplicateSubnetZone Conflict = "DuplicateSubnetsInSameZone"
)

// AttachmentAPI covers attachment lifecycle operations on the hub.
type AttachmentAPI interface {
	// FindAttachment returns the attachment binding the VPC to the hub, or
	// nil when none exists in a live state.
	FindAttachment(ctx context.Context, hubID, vpcID string) (*domain.Attachment, error)

	// DescribeAttachment returns full attachment detail including the
	// current association and tags, or nil when the attachment is gone.
	DescribeAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, error)

	// AttachmentState returns the current lifecycle state.
	AttachmentState(ctx context.Context, attachmentID string) (domain.AttachmentState, error)

	// CreateAttachment creates a new attachment with one member subnet.
	// Returns domain.ErrAttachmentCreationInProgress when a concurrent
	// execution is already creating it.
	CreateAttachment(ctx context.Context, hubID, vpcID, subnetID string) (*domain.Attachment, error)

	// AddSubnet adds a subnet to an existing attachment.
	AddSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, Conflict, error)

	// RemoveSubnet removes a subnet from an attachment. Removing the last
	// subnet yields ConflictLastSubnet instead of succeeding.
	RemoveSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, Conflict, error)

	// DeleteAttachment deletes the attachment with its associations and
	// propagations.
	DeleteAttachment(ctx context.Context, attachmentID string) (domain.AttachmentState, error)
}

// RoutingAPI covers routing-domain operations on the hub.
type RoutingAPI interface {
	// HubRouteTables lists all route tables on the hub with their tags.
	HubRouteTables(ctx context.Context, hubID string) ([]domain.HubRouteTable, error)

	// AssociateRouteTable binds the attachment to a routing domain. Returns
	// domain.ErrAlreadyConfigured when another execution associated it
	// first, domain.ErrResourceBusy on a concurrent modification.
	AssociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error)

	// DisassociateRouteTable removes the attachment's binding.
	DisassociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error)

	// AssociationState returns the association state for polling. An empty
	// API response reports AssociationDisassociated.
	AssociationState(ctx context.Context, routeTableID, attachmentID, vpcID string) (domain.AssociationState, error)

	// AttachmentPropagations lists route table ids the attachment currently
	// propagates to.
	AttachmentPropagations(ctx context.Context, attachmentID string) ([]string, error)

	// EnablePropagation advertises the attachment's routes into a routing
	// domain. A duplicate enable surfaces as domain.ErrAlreadyConfigured.
	EnablePropagation(ctx context.Context, routeTableID, attachmentID string) (Conflict, error)

	// DisablePropagation stops advertising into a routing domain.
	DisablePropagation(ctx context.Context, routeTableID, attachmentID string) (Conflict, error)
}

// SpokeAPI covers reads and route writes in the spoke account.
type SpokeAPI interface {
	// DescribeVPC returns the VPC with tags. A vanished VPC surfaces as
	// domain.ErrResourceNotFound.
	DescribeVPC(ctx context.Context, vpcID string) (*domain.VPC, error)

	// DescribeSubnet returns the subnet with tags. A vanished subnet
	// surfaces as domain.ErrResourceNotFound.
	DescribeSubnet(ctx context.Context, subnetID string) (*domain.Subnet, error)

	// SubnetRouteTable returns the route table governing the subnet: the
	// explicitly associated one, or the VPC's main route table.
	SubnetRouteTable(ctx context.Context, subnetID, vpcID string) (*domain.SpokeRouteTable, error)

	// CreateRoute adds a route to the destination (CIDR block or prefix-list
	// id) pointing at the hub.
	CreateRoute(ctx context.Context, routeTableID, destination, hubID string) error

	// DeleteRoute removes the route to the destination.
	DeleteRoute(ctx context.Context, routeTableID, destination string) error
}

// Scope selects which side of the hub/spoke boundary a tag write targets.
// Attachment tags are not shared between accounts, so the labeling step
// writes to both.
type Scope int

const (
	ScopeSpoke Scope = iota
	ScopeHub
)

// TagAPI covers tag writes on either side of the boundary.
type TagAPI interface {
	CreateTags(ctx context.Context, scope Scope, resourceID string, tags ...domain.Tag) error
}

// OrgAPI covers organization lookups for the requesting account.
type OrgAPI interface {
	// AccountName returns the account's display name, or "" when the lookup
	// is not permitted.
	AccountName(ctx context.Context, accountID string) (string, error)

	// AccountOUPath returns the account's organizational-unit path in the
	// form "Root/Ou1/Ou2/", or "" when the lookup is not permitted.
	AccountOUPath(ctx context.Context, accountID string) (string, error)
}

// Client is the full network API surface for one spoke account and region.
type Client interface {
	AttachmentAPI
	RoutingAPI
	SpokeAPI
	TagAPI
	OrgAPI
}

// Dialer produces a Client scoped to a spoke account and region, assuming
// credentials as required.
type Dialer interface {
	Dial(ctx context.Context, account, region string) (Client, error)
}
