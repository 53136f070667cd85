package domain

// AttachmentState is the lifecycle state of a hub attachment.
type AttachmentState string

const (
	AttachmentPendingAcceptance AttachmentState = "pendingAcceptance"
	AttachmentInitiating        AttachmentState = "initiatingRequest"
	AttachmentPending           AttachmentState = "pending"
	AttachmentAvailable         AttachmentState = "available"
	AttachmentModifying         AttachmentState = "modifying"
	AttachmentDeleting          AttachmentState = "deleting"
	AttachmentDeleted           AttachmentState = "deleted"
	AttachmentFailed            AttachmentState = "failed"
	AttachmentRejected          AttachmentState = "rejected"

	// AttachmentDoesNotExist is the synthetic state used when no attachment
	// exists for the VPC, so later steps can skip it uniformly.
	AttachmentDoesNotExist AttachmentState = "does-not-exist"
)

// Modifiable reports whether the attachment can accept association and
// propagation changes. The observed state is never the very latest, so
// transient states are included and a conflicting write surfaces as a
// retryable error instead.
func (s AttachmentState) Modifiable() bool {
	switch s {
	case AttachmentAvailable, AttachmentInitiating, AttachmentPending, AttachmentModifying:
		return true
	}
	return false
}

// Transient reports whether the attachment is between stable states. Used to
// insert a jitter sleep that desynchronizes concurrent executions.
func (s AttachmentState) Transient() bool {
	return s == AttachmentPending || s == AttachmentModifying
}

// Attachment is the connection object binding a VPC's subnets to the hub.
// At most one attachment exists per (hub, VPC) pair.
type Attachment struct {
	ID                     string
	State                  AttachmentState
	VPCID                  string
	OwnerID                string
	SubnetIDs              []string
	AssociatedRouteTableID string
	AssociationState       AssociationState
	Tags                   Tags
}

// HasSubnet reports whether the subnet is a member of the attachment.
func (a *Attachment) HasSubnet(subnetID string) bool {
	for _, id := range a.SubnetIDs {
		if id == subnetID {
			return true
		}
	}
	return false
}

// AssociationState is the lifecycle state of a route-table association.
type AssociationState string

const (
	AssociationAssociating    AssociationState = "associating"
	AssociationAssociated     AssociationState = "associated"
	AssociationDisassociating AssociationState = "disassociating"
	AssociationDisassociated  AssociationState = "disassociated"
)

// Terminal reports whether the association has settled.
func (s AssociationState) Terminal() bool {
	return s == AssociationAssociated || s == AssociationDisassociated
}
