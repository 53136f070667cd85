package domain

import (
	"strings"
	"time"
)

// TagChangeEvent is the envelope of a resource tag-change notification, the
// shape emitted by the cloud event bus for "Tag Change on Resource" events.
type TagChangeEvent struct {
	ID        string         `json:"id"`
	Account   string         `json:"account"`
	Region    string         `json:"region"`
	Time      time.Time      `json:"time"`
	Resources []string       `json:"resources"`
	Detail    TagEventDetail `json:"detail"`
}

// TagEventDetail carries the resource's full tag set after the change and
// the keys that changed.
type TagEventDetail struct {
	Tags           map[string]string `json:"tags"`
	ChangedTagKeys []string          `json:"changed-tag-keys"`
}

// ResourceID extracts the resource identifier from the first resource ARN,
// e.g. "arn:aws:ec2:...:subnet/subnet-0123" yields "subnet-0123".
func (e TagChangeEvent) ResourceID() string {
	if len(e.Resources) == 0 {
		return ""
	}
	_, id, found := strings.Cut(e.Resources[0], "/")
	if !found {
		return ""
	}
	return id
}

// AdminDecisionEvent is an operator accept/reject decision for a previously
// requested change, replayed through the workflow with the recorded desired
// state.
type AdminDecisionEvent struct {
	Action                 AdminAction    `json:"AdminAction"`
	SpokeAccountID         string         `json:"AWSSpokeAccountId"`
	Region                 string         `json:"region"`
	EventSource            TagEventSource `json:"TagEventSource"`
	VPCID                  string         `json:"VpcId"`
	SubnetID               string         `json:"SubnetId,omitempty"`
	AssociationRouteTable  string         `json:"AssociationRouteTable,omitempty"`
	PropagationRouteTables []string       `json:"PropagationRouteTables,omitempty"`
	UserID                 string         `json:"UserId,omitempty"`
}
