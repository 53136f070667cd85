// Package approval derives approval decisions for routing-domain changes
// from tags on the hub route tables.
package approval

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
)

// Tag keys of the conditional rule set. Numbered rules run from 01 to 99 and
// parsing stops at the first number with no tags.
const (
	rulePrefix       = "ApprovalRule-"
	ruleInOUs        = "InOUs"
	ruleNotInOUs     = "NotInOUs"
	ruleAssociation  = "Association"
	rulePropagation  = "Propagation"
	ruleDefaultToken = "Default"

	maxRuleNumber = 99
)

// ConditionalAutoRejected marks a context whose requested change was
// rejected by a conditional rule.
const ConditionalAutoRejected = "auto-rejected"

// Engine evaluates route-table approval policies against a reconciliation
// context.
type Engine struct {
	approvalKey string
	log         zerolog.Logger
}

// New creates an engine reading the given approval tag key.
func New(approvalKey string, log zerolog.Logger) *Engine {
	return &Engine{approvalKey: approvalKey, log: log.With().Str("component", "approval").Logger()}
}

// PolicyFor derives the approval policy of one hub route table from its
// tags. A route table without the approval tag accepts everything.
func (e *Engine) PolicyFor(rt domain.HubRouteTable) domain.ApprovalPolicy {
	policy := domain.ApprovalPolicy{
		RouteTableID:       rt.ID,
		Mode:               domain.PolicyAlwaysAccepted,
		DefaultAssociation: domain.RuleActionApprovalRequired,
		DefaultPropagation: domain.RuleActionApprovalRequired,
	}

	value, ok := rt.Tags.Get(e.approvalKey)
	if !ok {
		return policy
	}
	switch domain.NormalizeTagValue(value) {
	case "no":
		return policy
	case "conditional":
		policy.Mode = domain.PolicyConditional
	default:
		// "yes" and anything unrecognized require approval for all changes.
		policy.Mode = domain.PolicyAlwaysRequired
		return policy
	}

	if v, ok := rt.Tags.Get(rulePrefix + ruleDefaultToken + "-" + ruleAssociation); ok {
		policy.DefaultAssociation = domain.ParseRuleAction(v)
	}
	if v, ok := rt.Tags.Get(rulePrefix + ruleDefaultToken + "-" + rulePropagation); ok {
		policy.DefaultPropagation = domain.ParseRuleAction(v)
	}

	for n := 1; n <= maxRuleNumber; n++ {
		prefix := fmt.Sprintf("%s%02d-", rulePrefix, n)
		rule := domain.ApprovalRule{Number: n}
		found := false
		if v, ok := rt.Tags.Get(prefix + ruleInOUs); ok {
			rule.InOUs = splitOUList(v)
			found = true
		}
		if v, ok := rt.Tags.Get(prefix + ruleNotInOUs); ok {
			rule.NotInOUs = splitOUList(v)
			found = true
		}
		if v, ok := rt.Tags.Get(prefix + ruleAssociation); ok {
			rule.Association = domain.ParseRuleAction(v)
			found = true
		}
		if v, ok := rt.Tags.Get(prefix + rulePropagation); ok {
			rule.Propagation = domain.ParseRuleAction(v)
			found = true
		}
		if !found {
			break
		}
		if len(rule.InOUs) > 0 && len(rule.NotInOUs) > 0 {
			e.log.Warn().Str("route_table", rt.ID).Int("rule", n).
				Msg("rule lists both InOUs and NotInOUs, NotInOUs ignored")
			rule.NotInOUs = nil
		}
		policy.Rules = append(policy.Rules, rule)
	}
	return policy
}

// Evaluate returns the action a policy takes for one change type made by an
// account at the given OU path. Rules are consulted in ascending order and
// the first matching rule terminates evaluation: its action for the change
// type applies, or the policy default when it names none. Later rules never
// override an earlier match.
func (e *Engine) Evaluate(policy domain.ApprovalPolicy, accountOUPath string, change domain.ChangeType) domain.RuleAction {
	switch policy.Mode {
	case domain.PolicyAlwaysAccepted:
		return domain.RuleActionAccept
	case domain.PolicyAlwaysRequired:
		return domain.RuleActionApprovalRequired
	}

	for _, rule := range policy.Rules {
		if !rule.Matches(accountOUPath) {
			continue
		}
		action := rule.Association
		if change == domain.ChangePropagation {
			action = rule.Propagation
		}
		if action != domain.RuleActionUnset {
			return action
		}
		break
	}
	if change == domain.ChangePropagation {
		return policy.DefaultPropagation
	}
	return policy.DefaultAssociation
}

// Analyze applies the approval policies of the resolved routing domains to
// the context and sets the approval flags. Changes that are no-ops by the
// existing bindings are exempt: an unchanged association and propagations
// that already exist never re-enter approval.
func (e *Engine) Analyze(c *domain.ReconciliationContext, tables []domain.HubRouteTable) {
	if !c.AssociationRequested() {
		// Without a requested association there is no routing-domain
		// membership to gate; propagation-only intent is not analyzed.
		e.log.Debug().Str("vpc", c.VPCID).Msg("no association requested, approval analysis skipped")
		return
	}

	policies := make(map[string]domain.ApprovalPolicy, len(tables))
	for _, rt := range tables {
		policies[rt.ID] = e.PolicyFor(rt)
	}

	if c.AssociationChanged {
		action := e.Evaluate(policies[c.AssociationRouteTableID], c.AccountOUPath, domain.ChangeAssociation)
		e.apply(c, action, &c.AssociationNeedsApproval)
		e.log.Debug().Str("vpc", c.VPCID).Str("route_table", c.AssociationRouteTableID).
			Str("action", string(action)).Msg("association evaluated")
	}

	existing := make(map[string]bool, len(c.ExistingPropagationRouteTableIDs))
	for _, id := range c.ExistingPropagationRouteTableIDs {
		existing[id] = true
	}
	for _, id := range c.PropagationRouteTableIDs {
		if existing[id] {
			continue
		}
		action := e.Evaluate(policies[id], c.AccountOUPath, domain.ChangePropagation)
		e.apply(c, action, &c.PropagationNeedsApproval)
		e.log.Debug().Str("vpc", c.VPCID).Str("route_table", id).
			Str("action", string(action)).Msg("propagation evaluated")
	}
}

func (e *Engine) apply(c *domain.ReconciliationContext, action domain.RuleAction, needsApproval *bool) {
	switch action {
	case domain.RuleActionReject:
		c.ConditionalApproval = ConditionalAutoRejected
		*needsApproval = true
		c.ApprovalRequired = true
	case domain.RuleActionApprovalRequired:
		*needsApproval = true
		c.ApprovalRequired = true
	}
}

// Resolve computes the final workflow status from the approval flags and any
// operator decision. Rejection outranks a pending request, which outranks
// automatic approval.
func (e *Engine) Resolve(c *domain.ReconciliationContext) {
	switch {
	case c.AdminAction == domain.AdminActionAccept:
		c.Status = domain.StatusApproved
	case c.AdminAction == domain.AdminActionReject:
		c.Status = domain.StatusRejected
	case c.ConditionalApproval == ConditionalAutoRejected:
		c.Status = domain.StatusAutoRejected
		if c.Comment == "" {
			c.Comment = "change rejected by the routing domain's approval rules"
		}
	case c.ApprovalRequired:
		c.Status = domain.StatusRequested
		if c.Comment == "" {
			c.Comment = pendingComment(c)
		}
	default:
		c.Status = domain.StatusAutoApproved
	}
}

// pendingComment names the change types awaiting an operator decision.
func pendingComment(c *domain.ReconciliationContext) string {
	switch {
	case c.AssociationNeedsApproval && c.PropagationNeedsApproval:
		return "association and propagation changes awaiting approval"
	case c.AssociationNeedsApproval:
		return "association change awaiting approval"
	case c.PropagationNeedsApproval:
		return "propagation change awaiting approval"
	}
	return "change awaiting approval"
}

// splitOUList splits an OU list tag value on commas and colons only, so OU
// paths keep their "/" separators.
func splitOUList(value string) []string {
	value = strings.ReplaceAll(value, ":", ",")
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
