package domain

import "time"

// RouteTableNone is the sentinel for "no association requested". It is kept
// distinct from the empty string so that a context that has not yet been
// resolved can be told apart from one that resolved to no association.
const RouteTableNone = "none"

// WorkflowStatus is the final outcome of a reconciliation execution.
type WorkflowStatus string

const (
	StatusAutoApproved WorkflowStatus = "auto-approved"
	StatusAutoRejected WorkflowStatus = "auto-rejected"
	StatusRequested    WorkflowStatus = "requested"
	StatusApproved     WorkflowStatus = "approved"
	StatusRejected     WorkflowStatus = "rejected"
	StatusFailed       WorkflowStatus = "failed"
)

// AdminAction is an operator decision carried by a management event.
type AdminAction string

const (
	AdminActionNone          AdminAction = ""
	AdminActionAccept        AdminAction = "accept"
	AdminActionReject        AdminAction = "reject"
	AdminActionNotApplicable AdminAction = "not-applicable"
)

// Action records the last write the workflow performed against the hub.
type Action string

const (
	ActionCreateAttachment   Action = "create-attachment"
	ActionAddSubnet          Action = "add-subnet"
	ActionRemoveSubnet       Action = "remove-subnet"
	ActionDeleteAttachment   Action = "delete-attachment"
	ActionAssociate          Action = "associate-route-table"
	ActionDisassociate       Action = "disassociate-route-table"
	ActionEnablePropagation  Action = "enable-propagation"
	ActionDisablePropagation Action = "disable-propagation"
)

// RouteIntent is the default-route intent derived from the VPC routing tag.
type RouteIntent string

const (
	RouteIntentNone   RouteIntent = ""
	RouteIntentCreate RouteIntent = "create"
	RouteIntentDelete RouteIntent = "delete"
)

// TagEventSource identifies which resource's tag change triggered the event.
type TagEventSource string

const (
	EventSourceVPC    TagEventSource = "vpc"
	EventSourceSubnet TagEventSource = "subnet"
)

// ReconciliationContext is the single record threaded through every workflow
// step. Steps mutate it additively; it is created fresh per execution and
// persisted between steps by the external workflow host.
type ReconciliationContext struct {
	ExecutionID string         `json:"ExecutionId"`
	Account     string         `json:"Account"`
	Region      string         `json:"Region"`
	EventTime   time.Time      `json:"EventTime"`
	EventSource TagEventSource `json:"TagEventSource"`

	// Operator override, set only on management events.
	AdminAction AdminAction `json:"AdminAction,omitempty"`
	UserID      string      `json:"UserId,omitempty"`

	// Resource identity.
	VPCID            string `json:"VpcId"`
	SubnetID         string `json:"SubnetId,omitempty"`
	AvailabilityZone string `json:"AvailabilityZone,omitempty"`
	VPCCidr          string `json:"VpcCidr,omitempty"`
	VPCName          string `json:"VpcName,omitempty"`
	AccountName      string `json:"AccountName,omitempty"`
	AccountOUPath    string `json:"AccountOuPath,omitempty"`

	// Desired membership from tags.
	AssociateWith  string      `json:"AssociateWith,omitempty"`
	PropagateTo    []string    `json:"PropagateTo,omitempty"`
	SubnetTagFound bool        `json:"SubnetTagFound"`
	VPCTagFound    bool        `json:"VpcTagFound"`
	RouteToHub     RouteIntent `json:"RouteToHub,omitempty"`

	// Observed attachment state.
	TransitAttachmentID string          `json:"TransitGatewayAttachmentId,omitempty"`
	AttachmentFound     bool            `json:"TgwAttachmentExist"`
	SubnetInAttachment  bool            `json:"FoundExistingSubnetInAttachment"`
	AttachmentState     AttachmentState `json:"AttachmentState,omitempty"`

	// Resolved routing domains.
	HubRouteTableIDs         []string `json:"RouteTableList,omitempty"`
	AssociationRouteTableID  string   `json:"AssociationRouteTableId,omitempty"`
	PropagationRouteTableIDs []string `json:"PropagationRouteTableIds,omitempty"`

	// Previously observed bindings, for idempotence checks.
	ExistingAssociationRouteTableID  string   `json:"ExistingAssociationRouteTableId,omitempty"`
	ExistingPropagationRouteTableIDs []string `json:"ExistingPropagationRouteTableIds,omitempty"`
	AssociationChanged               bool     `json:"UpdateAssociationRouteTableId"`

	// Approval outcome.
	ApprovalRequired         bool   `json:"ApprovalRequired"`
	AssociationNeedsApproval bool   `json:"AssociationNeedsApproval,omitempty"`
	PropagationNeedsApproval bool   `json:"PropagationNeedsApproval,omitempty"`
	ConditionalApproval      string `json:"ConditionalApproval,omitempty"`

	// Applied changes.
	Action                          Action           `json:"Action,omitempty"`
	AssociationState                AssociationState `json:"AssociationState,omitempty"`
	DisassociationState             AssociationState `json:"DisassociationState,omitempty"`
	EnablePropagationRouteTableIDs  []string         `json:"EnablePropagationRouteTableIds,omitempty"`
	DisablePropagationRouteTableIDs []string         `json:"DisablePropagationRouteTableIds,omitempty"`

	// Spoke default-route reconciliation.
	SpokeRouteTableID   string `json:"RouteTableId,omitempty"`
	SpokeRouteTableMain bool   `json:"MainRouteTable,omitempty"`

	// Workflow outcome.
	Status  WorkflowStatus `json:"Status,omitempty"`
	Comment string         `json:"Comment,omitempty"`

	// Tags to be applied to the attachment at the end of the workflow.
	AttachmentTagsRequired map[string]string `json:"AttachmentTagsRequired,omitempty"`
}

// RequireAttachmentTag records a tag to be applied to the attachment during
// the final labeling step. Values longer than 255 characters are truncated to
// the tag-value limit.
func (c *ReconciliationContext) RequireAttachmentTag(key, value string) {
	if c.AttachmentTagsRequired == nil {
		c.AttachmentTagsRequired = make(map[string]string)
	}
	if len(value) > 255 {
		value = value[:255]
	}
	c.AttachmentTagsRequired[key] = value
}

// AssociationRequested reports whether the context asks for an association.
func (c *ReconciliationContext) AssociationRequested() bool {
	return c.AssociationRouteTableID != "" && c.AssociationRouteTableID != RouteTableNone
}

// Fail marks the execution failed with the given error.
func (c *ReconciliationContext) Fail(err error) {
	c.Status = StatusFailed
	c.Comment = err.Error()
}
