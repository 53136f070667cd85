// Package memorynet is an in-memory implementation of the network client
// interfaces for testing. It models a single hub with route tables, spoke
// VPCs, subnets and attachments, and records every tag write.
package memorynet

import (
	"context"
	"fmt"
	"sync"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// TagWrite records one CreateTags call for assertions.
type TagWrite struct {
	Scope      network.Scope
	ResourceID string
	Key        string
	Value      string
}

// Fabric is an in-memory hub-and-spoke network.
type Fabric struct {
	mu sync.Mutex

	HubID string

	vpcs        map[string]*domain.VPC
	subnets     map[string]*domain.Subnet
	attachments map[string]*domain.Attachment
	hubTables   []domain.HubRouteTable

	// attachment id -> set of route table ids it propagates to
	propagations map[string]map[string]bool

	spokeTables  map[string]*domain.SpokeRouteTable
	subnetAssocs map[string]string // subnet id -> explicit spoke route table id
	mainTables   map[string]string // vpc id -> main spoke route table id

	accountNames map[string]string
	ouPaths      map[string]string

	// TagWrites holds every tag write in call order.
	TagWrites []TagWrite

	// AssociationSettleAfter delays association polling: the first N
	// AssociationState calls report a transient state.
	AssociationSettleAfter int
	associationPolls       int

	// BusyOnAddSubnet forces the next AddSubnet call to report a concurrent
	// modification conflict.
	BusyOnAddSubnet bool

	nextID int
}

var _ network.Client = (*Fabric)(nil)
var _ network.Dialer = (*Fabric)(nil)

// New creates an empty fabric for the given hub.
func New(hubID string) *Fabric {
	return &Fabric{
		HubID:        hubID,
		vpcs:         make(map[string]*domain.VPC),
		subnets:      make(map[string]*domain.Subnet),
		attachments:  make(map[string]*domain.Attachment),
		propagations: make(map[string]map[string]bool),
		spokeTables:  make(map[string]*domain.SpokeRouteTable),
		subnetAssocs: make(map[string]string),
		mainTables:   make(map[string]string),
		accountNames: make(map[string]string),
		ouPaths:      make(map[string]string),
	}
}

// Dial implements network.Dialer; the fabric is shared across accounts.
func (f *Fabric) Dial(ctx context.Context, account, region string) (network.Client, error) {
	return f, nil
}

// AddVPC registers a spoke VPC.
func (f *Fabric) AddVPC(id, cidr string, tags ...domain.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vpcs[id] = &domain.VPC{ID: id, CidrBlock: cidr, Tags: tags}
}

// AddSubnetResource registers a spoke subnet.
func (f *Fabric) AddSubnetResource(id, vpcID, az string, tags ...domain.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subnets[id] = &domain.Subnet{ID: id, VPCID: vpcID, AvailabilityZone: az, Tags: tags}
}

// AddHubRouteTable registers a routing domain on the hub.
func (f *Fabric) AddHubRouteTable(id string, tags ...domain.Tag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hubTables = append(f.hubTables, domain.HubRouteTable{ID: id, Tags: tags})
}

// AddSpokeRouteTable registers a spoke route table. When subnetID is empty
// the table becomes the VPC's main route table.
func (f *Fabric) AddSpokeRouteTable(id, vpcID, subnetID string, routes ...domain.Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spokeTables[id] = &domain.SpokeRouteTable{ID: id, Main: subnetID == "", Routes: routes}
	if subnetID == "" {
		f.mainTables[vpcID] = id
	} else {
		f.subnetAssocs[subnetID] = id
	}
}

// SetAccount registers organization detail for an account.
func (f *Fabric) SetAccount(accountID, name, ouPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountNames[accountID] = name
	f.ouPaths[accountID] = ouPath
}

// SetAttachmentState overrides an attachment's lifecycle state.
func (f *Fabric) SetAttachmentState(attachmentID string, state domain.AttachmentState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.attachments[attachmentID]; ok {
		a.State = state
	}
}

// Attachment returns a copy of the attachment, or nil.
func (f *Fabric) Attachment(attachmentID string) *domain.Attachment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// SpokeTable returns a copy of the spoke route table, or nil.
func (f *Fabric) SpokeTable(id string) *domain.SpokeRouteTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.spokeTables[id]
	if !ok {
		return nil
	}
	cp := *rt
	cp.Routes = append([]domain.Route(nil), rt.Routes...)
	return &cp
}

func (f *Fabric) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%08d", prefix, f.nextID)
}

func (f *Fabric) liveAttachmentForVPC(vpcID string) *domain.Attachment {
	for _, a := range f.attachments {
		if a.VPCID == vpcID && a.State != domain.AttachmentDeleted && a.State != domain.AttachmentDeleting {
			return a
		}
	}
	return nil
}

// FindAttachment implements network.AttachmentAPI.
func (f *Fabric) FindAttachment(ctx context.Context, hubID, vpcID string) (*domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.liveAttachmentForVPC(vpcID)
	if a == nil {
		return nil, nil
	}
	cp := *a
	cp.SubnetIDs = append([]string(nil), a.SubnetIDs...)
	return &cp, nil
}

// DescribeAttachment implements network.AttachmentAPI.
func (f *Fabric) DescribeAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok || a.State == domain.AttachmentDeleted {
		return nil, nil
	}
	cp := *a
	cp.SubnetIDs = append([]string(nil), a.SubnetIDs...)
	return &cp, nil
}

// AttachmentState implements network.AttachmentAPI.
func (f *Fabric) AttachmentState(ctx context.Context, attachmentID string) (domain.AttachmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return domain.AttachmentDeleted, nil
	}
	return a.State, nil
}

// CreateAttachment implements network.AttachmentAPI.
func (f *Fabric) CreateAttachment(ctx context.Context, hubID, vpcID, subnetID string) (*domain.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liveAttachmentForVPC(vpcID) != nil {
		return nil, domain.ErrAttachmentCreationInProgress
	}
	if _, ok := f.subnets[subnetID]; !ok {
		return nil, fmt.Errorf("subnet %s: %w", subnetID, domain.ErrResourceNotFound)
	}
	a := &domain.Attachment{
		ID:        f.newID("tgw-attach"),
		State:     domain.AttachmentPending,
		VPCID:     vpcID,
		SubnetIDs: []string{subnetID},
	}
	f.attachments[a.ID] = a
	cp := *a
	cp.SubnetIDs = append([]string(nil), a.SubnetIDs...)
	return &cp, nil
}

// AddSubnet implements network.AttachmentAPI.
func (f *Fabric) AddSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, network.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BusyOnAddSubnet {
		f.BusyOnAddSubnet = false
		return "", network.ConflictIncorrectState, nil
	}
	a, ok := f.attachments[attachmentID]
	if !ok {
		return "", network.ConflictNone, fmt.Errorf("attachment %s: %w", attachmentID, domain.ErrResourceNotFound)
	}
	subnet, ok := f.subnets[subnetID]
	if !ok {
		return "", network.ConflictNone, fmt.Errorf("subnet %s: %w", subnetID, domain.ErrResourceNotFound)
	}
	for _, member := range a.SubnetIDs {
		if m, ok := f.subnets[member]; ok && m.AvailabilityZone == subnet.AvailabilityZone {
			return "", network.ConflictDuplicateSubnetZone, nil
		}
	}
	a.SubnetIDs = append(a.SubnetIDs, subnetID)
	a.State = domain.AttachmentModifying
	return a.State, network.ConflictNone, nil
}

// RemoveSubnet implements network.AttachmentAPI.
func (f *Fabric) RemoveSubnet(ctx context.Context, attachmentID, subnetID string) (domain.AttachmentState, network.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return "", network.ConflictNone, fmt.Errorf("attachment %s: %w", attachmentID, domain.ErrResourceNotFound)
	}
	if len(a.SubnetIDs) == 1 && a.SubnetIDs[0] == subnetID {
		return "", network.ConflictLastSubnet, nil
	}
	kept := a.SubnetIDs[:0]
	for _, id := range a.SubnetIDs {
		if id != subnetID {
			kept = append(kept, id)
		}
	}
	a.SubnetIDs = kept
	a.State = domain.AttachmentModifying
	return a.State, network.ConflictNone, nil
}

// DeleteAttachment implements network.AttachmentAPI.
func (f *Fabric) DeleteAttachment(ctx context.Context, attachmentID string) (domain.AttachmentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return domain.AttachmentDeleted, nil
	}
	a.State = domain.AttachmentDeleted
	a.AssociatedRouteTableID = ""
	delete(f.propagations, attachmentID)
	return domain.AttachmentDeleting, nil
}

// HubRouteTables implements network.RoutingAPI.
func (f *Fabric) HubRouteTables(ctx context.Context, hubID string) ([]domain.HubRouteTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HubRouteTable(nil), f.hubTables...), nil
}

// AssociateRouteTable implements network.RoutingAPI.
func (f *Fabric) AssociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return "", fmt.Errorf("attachment %s: %w", attachmentID, domain.ErrResourceNotFound)
	}
	if a.AssociatedRouteTableID == routeTableID {
		return "", domain.ErrAlreadyConfigured
	}
	if a.AssociatedRouteTableID != "" {
		return "", domain.ErrResourceBusy
	}
	a.AssociatedRouteTableID = routeTableID
	f.associationPolls = 0
	return domain.AssociationAssociating, nil
}

// DisassociateRouteTable implements network.RoutingAPI.
func (f *Fabric) DisassociateRouteTable(ctx context.Context, routeTableID, attachmentID string) (domain.AssociationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return "", fmt.Errorf("attachment %s: %w", attachmentID, domain.ErrResourceNotFound)
	}
	if a.AssociatedRouteTableID != routeTableID {
		return "", domain.ErrAlreadyConfigured
	}
	a.AssociatedRouteTableID = ""
	f.associationPolls = 0
	return domain.AssociationDisassociating, nil
}

// AssociationState implements network.RoutingAPI.
func (f *Fabric) AssociationState(ctx context.Context, routeTableID, attachmentID, vpcID string) (domain.AssociationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID]
	if !ok {
		return domain.AssociationDisassociated, nil
	}
	if f.associationPolls < f.AssociationSettleAfter {
		f.associationPolls++
		if a.AssociatedRouteTableID == routeTableID {
			return domain.AssociationAssociating, nil
		}
		return domain.AssociationDisassociating, nil
	}
	if a.AssociatedRouteTableID == routeTableID {
		return domain.AssociationAssociated, nil
	}
	return domain.AssociationDisassociated, nil
}

// AttachmentPropagations implements network.RoutingAPI.
func (f *Fabric) AttachmentPropagations(ctx context.Context, attachmentID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for rtb := range f.propagations[attachmentID] {
		out = append(out, rtb)
	}
	return out, nil
}

// EnablePropagation implements network.RoutingAPI.
func (f *Fabric) EnablePropagation(ctx context.Context, routeTableID, attachmentID string) (network.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.propagations[attachmentID] == nil {
		f.propagations[attachmentID] = make(map[string]bool)
	}
	if f.propagations[attachmentID][routeTableID] {
		return network.ConflictNone, domain.ErrAlreadyConfigured
	}
	f.propagations[attachmentID][routeTableID] = true
	return network.ConflictNone, nil
}

// DisablePropagation implements network.RoutingAPI.
func (f *Fabric) DisablePropagation(ctx context.Context, routeTableID, attachmentID string) (network.Conflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.propagations[attachmentID], routeTableID)
	return network.ConflictNone, nil
}

// DescribeVPC implements network.SpokeAPI.
func (f *Fabric) DescribeVPC(ctx context.Context, vpcID string) (*domain.VPC, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vpc, ok := f.vpcs[vpcID]
	if !ok {
		return nil, fmt.Errorf("vpc %s: %w", vpcID, domain.ErrResourceNotFound)
	}
	cp := *vpc
	return &cp, nil
}

// DescribeSubnet implements network.SpokeAPI.
func (f *Fabric) DescribeSubnet(ctx context.Context, subnetID string) (*domain.Subnet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subnet, ok := f.subnets[subnetID]
	if !ok {
		return nil, fmt.Errorf("subnet %s: %w", subnetID, domain.ErrResourceNotFound)
	}
	cp := *subnet
	return &cp, nil
}

// SubnetRouteTable implements network.SpokeAPI.
func (f *Fabric) SubnetRouteTable(ctx context.Context, subnetID, vpcID string) (*domain.SpokeRouteTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.subnetAssocs[subnetID]
	if !ok {
		id, ok = f.mainTables[vpcID]
		if !ok {
			return nil, fmt.Errorf("route table for vpc %s: %w", vpcID, domain.ErrResourceNotFound)
		}
	}
	rt := f.spokeTables[id]
	cp := *rt
	cp.Routes = append([]domain.Route(nil), rt.Routes...)
	return &cp, nil
}

// CreateRoute implements network.SpokeAPI.
func (f *Fabric) CreateRoute(ctx context.Context, routeTableID, destination, hubID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.spokeTables[routeTableID]
	if !ok {
		return fmt.Errorf("route table %s: %w", routeTableID, domain.ErrResourceNotFound)
	}
	route := domain.Route{TransitGatewayID: hubID}
	if domain.IsPrefixListID(destination) {
		route.DestinationPrefixListID = destination
	} else {
		route.DestinationCidr = destination
	}
	rt.Routes = append(rt.Routes, route)
	return nil
}

// DeleteRoute implements network.SpokeAPI.
func (f *Fabric) DeleteRoute(ctx context.Context, routeTableID, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.spokeTables[routeTableID]
	if !ok {
		return fmt.Errorf("route table %s: %w", routeTableID, domain.ErrResourceNotFound)
	}
	kept := rt.Routes[:0]
	for _, r := range rt.Routes {
		if r.Destination() != destination {
			kept = append(kept, r)
		}
	}
	rt.Routes = kept
	return nil
}

// CreateTags implements network.TagAPI.
func (f *Fabric) CreateTags(ctx context.Context, scope network.Scope, resourceID string, tags ...domain.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tag := range tags {
		f.TagWrites = append(f.TagWrites, TagWrite{Scope: scope, ResourceID: resourceID, Key: tag.Key, Value: tag.Value})
		if a, ok := f.attachments[resourceID]; ok {
			a.Tags = upsertTag(a.Tags, tag)
		}
		if v, ok := f.vpcs[resourceID]; ok {
			v.Tags = upsertTag(v.Tags, tag)
		}
		if s, ok := f.subnets[resourceID]; ok {
			s.Tags = upsertTag(s.Tags, tag)
		}
	}
	return nil
}

// AccountName implements network.OrgAPI.
func (f *Fabric) AccountName(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountNames[accountID], nil
}

// AccountOUPath implements network.OrgAPI.
func (f *Fabric) AccountOUPath(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ouPaths[accountID], nil
}

// TagWritesFor returns recorded tag writes for a resource.
func (f *Fabric) TagWritesFor(resourceID string) []TagWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TagWrite
	for _, w := range f.TagWrites {
		if w.ResourceID == resourceID {
			out = append(out, w)
		}
	}
	return out
}

func upsertTag(tags domain.Tags, tag domain.Tag) domain.Tags {
	for i := range tags {
		if tags[i].Key == tag.Key {
			tags[i].Value = tag.Value
			return tags
		}
	}
	return append(tags, tag)
}
