package domain

import "strings"

// RuleAction is the outcome of an approval evaluation for a single change.
type RuleAction string

const (
	RuleActionAccept           RuleAction = "accept"
	RuleActionReject           RuleAction = "reject"
	RuleActionApprovalRequired RuleAction = "approvalrequired"
	RuleActionUnset            RuleAction = ""
)

// ParseRuleAction normalizes a tag value into a RuleAction. Unknown values
// map to approval-required, the safe default.
func ParseRuleAction(value string) RuleAction {
	switch NormalizeTagValue(value) {
	case "accept":
		return RuleActionAccept
	case "reject":
		return RuleActionReject
	case "", "approvalrequired", "approval-required":
		return RuleActionApprovalRequired
	}
	return RuleActionApprovalRequired
}

// PolicyMode is the per-route-table approval mode derived from the approval
// tag: absent means always-accepted, "yes" always-required, "conditional"
// rule-based.
type PolicyMode string

const (
	PolicyAlwaysAccepted PolicyMode = "always-accepted"
	PolicyAlwaysRequired PolicyMode = "always-required"
	PolicyConditional    PolicyMode = "conditional"
)

// ApprovalRule is one numbered entry of a conditional policy. InOUs and
// NotInOUs are mutually exclusive OU-path prefix predicates.
type ApprovalRule struct {
	Number      int
	InOUs       []string
	NotInOUs    []string
	Association RuleAction
	Propagation RuleAction
}

// Matches evaluates the rule's OU predicate against the account's OU path.
// Paths are compared as prefixes after normalization. An inOUs rule matches
// when the path starts with any listed OU; a notInOUs rule matches when it
// starts with none of them.
func (r ApprovalRule) Matches(accountOUPath string) bool {
	path := strings.ToLower(accountOUPath)
	if len(r.InOUs) > 0 {
		for _, ou := range r.InOUs {
			if strings.HasPrefix(path, NormalizeOUPath(ou)) {
				return true
			}
		}
		return false
	}
	if len(r.NotInOUs) > 0 {
		for _, ou := range r.NotInOUs {
			if strings.HasPrefix(path, NormalizeOUPath(ou)) {
				return false
			}
		}
		return true
	}
	return false
}

// NormalizeOUPath completes a shorthand OU path for prefix comparison:
// "Sandbox" becomes "root/sandbox/".
func NormalizeOUPath(path string) string {
	path = strings.ToLower(strings.TrimSpace(path))
	if !strings.HasPrefix(path, "root/") {
		path = "root/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

// ApprovalPolicy is the approval configuration of one hub route table.
type ApprovalPolicy struct {
	RouteTableID       string
	Mode               PolicyMode
	DefaultAssociation RuleAction
	DefaultPropagation RuleAction
	Rules              []ApprovalRule // ascending by Number
}

// ChangeType distinguishes which binding an approval decision is about.
type ChangeType string

const (
	ChangeAssociation ChangeType = "association"
	ChangePropagation ChangeType = "propagation"
)
