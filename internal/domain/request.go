package domain

import "time"

// VersionLatest is the synthetic version stored alongside every numbered
// request row so the newest state of a subnet can be fetched directly.
const VersionLatest = "latest"

// AttachmentRequest is the persisted record of one reconciliation outcome.
// A numbered row is written per execution plus a "latest" row per subnet.
type AttachmentRequest struct {
	ID                     string         `db:"id" json:"id"`
	SubnetID               string         `db:"subnet_id" json:"subnet_id"`
	Version                string         `db:"version" json:"version"`
	VPCID                  string         `db:"vpc_id" json:"vpc_id"`
	Region                 string         `db:"region" json:"region"`
	VPCCidr                string         `db:"vpc_cidr" json:"vpc_cidr,omitempty"`
	AvailabilityZone       string         `db:"availability_zone" json:"availability_zone,omitempty"`
	TransitGatewayID       string         `db:"transit_gateway_id" json:"transit_gateway_id"`
	AssociationRouteTable  string         `db:"association_route_table" json:"association_route_table,omitempty"`
	PropagationRouteTables StringList     `db:"propagation_route_tables" json:"propagation_route_tables,omitempty"`
	EventSource            TagEventSource `db:"tag_event_source" json:"tag_event_source"`
	Action                 Action         `db:"action" json:"action,omitempty"`
	Status                 WorkflowStatus `db:"status" json:"status"`
	Comment                string         `db:"comment" json:"comment,omitempty"`
	SpokeAccountID         string         `db:"spoke_account_id" json:"spoke_account_id"`
	UserID                 string         `db:"user_id" json:"user_id"`
	RequestedAt            time.Time      `db:"requested_at" json:"requested_at"`
	RespondedAt            time.Time      `db:"responded_at" json:"responded_at"`
	ExpiresAt              time.Time      `db:"expires_at" json:"expires_at"`
}

// AuditRecord is one step-level entry of the durable audit trail.
type AuditRecord struct {
	ID          string    `db:"id" json:"id"`
	ExecutionID string    `db:"execution_id" json:"execution_id"`
	SubnetID    string    `db:"subnet_id" json:"subnet_id,omitempty"`
	VPCID       string    `db:"vpc_id" json:"vpc_id,omitempty"`
	Step        string    `db:"step" json:"step"`
	Status      string    `db:"status" json:"status"`
	Detail      string    `db:"detail" json:"detail,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
