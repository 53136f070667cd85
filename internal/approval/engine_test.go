package approval_test

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/approval"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
)

func newEngine() *approval.Engine {
	return approval.New("ApprovalRequired", zerolog.Nop())
}

func table(id string, tags ...domain.Tag) domain.HubRouteTable {
	return domain.HubRouteTable{ID: id, Tags: tags}
}

func tag(k, v string) domain.Tag { return domain.Tag{Key: k, Value: v} }

func TestPolicyForModes(t *testing.T) {
	e := newEngine()

	tests := []struct {
		name string
		rt   domain.HubRouteTable
		want domain.PolicyMode
	}{
		{"absent tag accepts", table("tgw-rtb-1"), domain.PolicyAlwaysAccepted},
		{"no accepts", table("tgw-rtb-1", tag("ApprovalRequired", "no")), domain.PolicyAlwaysAccepted},
		{"yes requires", table("tgw-rtb-1", tag("ApprovalRequired", "yes")), domain.PolicyAlwaysRequired},
		{"unknown value requires", table("tgw-rtb-1", tag("ApprovalRequired", "maybe")), domain.PolicyAlwaysRequired},
		{"conditional", table("tgw-rtb-1", tag("ApprovalRequired", "conditional")), domain.PolicyConditional},
		{"case insensitive", table("tgw-rtb-1", tag("approvalrequired", "Yes")), domain.PolicyAlwaysRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.PolicyFor(tt.rt).Mode; got != tt.want {
				t.Errorf("mode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPolicyForNumberedRules(t *testing.T) {
	e := newEngine()
	rt := table("tgw-rtb-1",
		tag("ApprovalRequired", "conditional"),
		tag("ApprovalRule-01-InOUs", "sales, marketing"),
		tag("ApprovalRule-01-Association", "accept"),
		tag("ApprovalRule-02-NotInOUs", "sandbox"),
		tag("ApprovalRule-02-Propagation", "reject"),
		// rule 03 missing: rule 04 must not be read
		tag("ApprovalRule-04-InOUs", "ignored"),
		tag("ApprovalRule-Default-Association", "reject"),
	)

	policy := e.PolicyFor(rt)
	if len(policy.Rules) != 2 {
		t.Fatalf("rules = %d, want 2 (parsing stops at the first gap)", len(policy.Rules))
	}
	if got := policy.Rules[0].InOUs; len(got) != 2 || got[0] != "sales" || got[1] != "marketing" {
		t.Errorf("rule 01 InOUs = %v", got)
	}
	if policy.Rules[0].Association != domain.RuleActionAccept {
		t.Errorf("rule 01 association = %q", policy.Rules[0].Association)
	}
	if policy.Rules[1].Propagation != domain.RuleActionReject {
		t.Errorf("rule 02 propagation = %q", policy.Rules[1].Propagation)
	}
	if policy.DefaultAssociation != domain.RuleActionReject {
		t.Errorf("default association = %q", policy.DefaultAssociation)
	}
	if policy.DefaultPropagation != domain.RuleActionApprovalRequired {
		t.Errorf("default propagation = %q", policy.DefaultPropagation)
	}
}

func TestEvaluateConditional(t *testing.T) {
	e := newEngine()
	rt := table("tgw-rtb-1",
		tag("ApprovalRequired", "conditional"),
		tag("ApprovalRule-01-InOUs", "sales"),
		tag("ApprovalRule-01-Association", "accept"),
		tag("ApprovalRule-02-NotInOUs", "sandbox, suspended"),
		tag("ApprovalRule-02-Association", "approvalrequired"),
		tag("ApprovalRule-02-Propagation", "reject"),
	)
	policy := e.PolicyFor(rt)

	tests := []struct {
		name   string
		ouPath string
		change domain.ChangeType
		want   domain.RuleAction
	}{
		{"sales association accepted", "Root/Sales/", domain.ChangeAssociation, domain.RuleActionAccept},
		{"nested sales accepted", "Root/Sales/EMEA/", domain.ChangeAssociation, domain.RuleActionAccept},
		{"sales propagation stops at rule 01, default applies", "Root/Sales/", domain.ChangePropagation, domain.RuleActionApprovalRequired},
		{"finance association needs approval", "Root/Finance/", domain.ChangeAssociation, domain.RuleActionApprovalRequired},
		{"sandbox misses both rules, default applies", "Root/Sandbox/", domain.ChangeAssociation, domain.RuleActionApprovalRequired},
		{"suspended excluded by NotInOUs", "Root/Suspended/Dev/", domain.ChangePropagation, domain.RuleActionApprovalRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(policy, tt.ouPath, tt.change); got != tt.want {
				t.Errorf("Evaluate(%q, %s) = %q, want %q", tt.ouPath, tt.change, got, tt.want)
			}
		})
	}
}

func TestEvaluateFirstMatchTerminates(t *testing.T) {
	e := newEngine()
	rt := table("tgw-rtb-1",
		tag("ApprovalRequired", "conditional"),
		tag("ApprovalRule-01-InOUs", "sales"),
		tag("ApprovalRule-01-Propagation", "accept"),
		tag("ApprovalRule-02-InOUs", "sales"),
		tag("ApprovalRule-02-Association", "accept"),
	)
	policy := e.PolicyFor(rt)

	// rule 01 matches but names no association action; rule 02's accept must
	// not be reachable
	if got := e.Evaluate(policy, "Root/Sales/", domain.ChangeAssociation); got != domain.RuleActionApprovalRequired {
		t.Errorf("association = %q, want %q", got, domain.RuleActionApprovalRequired)
	}
	if got := e.Evaluate(policy, "Root/Sales/", domain.ChangePropagation); got != domain.RuleActionAccept {
		t.Errorf("propagation = %q, want %q", got, domain.RuleActionAccept)
	}
}

func TestEvaluateFirstMatchUsesConfiguredDefault(t *testing.T) {
	e := newEngine()
	rt := table("tgw-rtb-1",
		tag("ApprovalRequired", "conditional"),
		tag("ApprovalRule-Default-Association", "reject"),
		tag("ApprovalRule-01-InOUs", "sales"),
		tag("ApprovalRule-01-Propagation", "accept"),
	)
	policy := e.PolicyFor(rt)

	if got := e.Evaluate(policy, "Root/Sales/", domain.ChangeAssociation); got != domain.RuleActionReject {
		t.Errorf("association = %q, want %q", got, domain.RuleActionReject)
	}
}

func TestRuleMatchesOUShorthand(t *testing.T) {
	rule := domain.ApprovalRule{InOUs: []string{"Sales"}}
	if !rule.Matches("root/sales/") {
		t.Error("shorthand OU should be completed to root/sales/")
	}
	if rule.Matches("root/salesforce/") {
		t.Error("prefix match must respect path segments")
	}
}

func TestAnalyzeIdempotenceExemptions(t *testing.T) {
	e := newEngine()
	tables := []domain.HubRouteTable{
		table("tgw-rtb-strict", tag("ApprovalRequired", "yes")),
	}

	t.Run("unchanged association skips approval", func(t *testing.T) {
		c := &domain.ReconciliationContext{
			AssociationRouteTableID:         "tgw-rtb-strict",
			ExistingAssociationRouteTableID: "tgw-rtb-strict",
			AssociationChanged:              false,
		}
		e.Analyze(c, tables)
		if c.ApprovalRequired {
			t.Error("unchanged association must not require approval")
		}
	})

	t.Run("existing propagation skips approval", func(t *testing.T) {
		c := &domain.ReconciliationContext{
			AssociationRouteTableID:          domain.RouteTableNone,
			PropagationRouteTableIDs:         []string{"tgw-rtb-strict"},
			ExistingPropagationRouteTableIDs: []string{"tgw-rtb-strict"},
		}
		e.Analyze(c, tables)
		if c.ApprovalRequired {
			t.Error("already-enabled propagation must not require approval")
		}
	})

	t.Run("new propagation requires approval", func(t *testing.T) {
		c := &domain.ReconciliationContext{
			AssociationRouteTableID:         "tgw-rtb-strict",
			ExistingAssociationRouteTableID: "tgw-rtb-strict",
			PropagationRouteTableIDs:        []string{"tgw-rtb-strict"},
		}
		e.Analyze(c, tables)
		if !c.ApprovalRequired || !c.PropagationNeedsApproval {
			t.Errorf("ApprovalRequired = %v, PropagationNeedsApproval = %v", c.ApprovalRequired, c.PropagationNeedsApproval)
		}
	})

	t.Run("propagation-only intent is not analyzed", func(t *testing.T) {
		c := &domain.ReconciliationContext{
			AssociationRouteTableID:  domain.RouteTableNone,
			PropagationRouteTableIDs: []string{"tgw-rtb-strict"},
		}
		e.Analyze(c, tables)
		if c.ApprovalRequired || c.PropagationNeedsApproval {
			t.Errorf("ApprovalRequired = %v, PropagationNeedsApproval = %v", c.ApprovalRequired, c.PropagationNeedsApproval)
		}
	})
}

func TestAnalyzeConditionalReject(t *testing.T) {
	e := newEngine()
	tables := []domain.HubRouteTable{
		table("tgw-rtb-1",
			tag("ApprovalRequired", "conditional"),
			tag("ApprovalRule-01-InOUs", "sandbox"),
			tag("ApprovalRule-01-Association", "reject"),
		),
	}
	c := &domain.ReconciliationContext{
		AccountOUPath:           "Root/Sandbox/",
		AssociationRouteTableID: "tgw-rtb-1",
		AssociationChanged:      true,
	}
	e.Analyze(c, tables)
	if c.ConditionalApproval != approval.ConditionalAutoRejected {
		t.Errorf("ConditionalApproval = %q", c.ConditionalApproval)
	}
	if !c.ApprovalRequired {
		t.Error("a rejection must set the approval flag")
	}
	if !c.AssociationNeedsApproval {
		t.Error("a rejected association must carry its approval flag")
	}
}

func TestResolveStatusPrecedence(t *testing.T) {
	e := newEngine()

	tests := []struct {
		name string
		c    domain.ReconciliationContext
		want domain.WorkflowStatus
	}{
		{"clean run auto-approves", domain.ReconciliationContext{}, domain.StatusAutoApproved},
		{"approval pending", domain.ReconciliationContext{ApprovalRequired: true}, domain.StatusRequested},
		{
			"rejection outranks pending",
			domain.ReconciliationContext{ApprovalRequired: true, ConditionalApproval: approval.ConditionalAutoRejected},
			domain.StatusAutoRejected,
		},
		{
			"admin accept overrides",
			domain.ReconciliationContext{ApprovalRequired: true, AdminAction: domain.AdminActionAccept},
			domain.StatusApproved,
		},
		{
			"admin reject overrides",
			domain.ReconciliationContext{AdminAction: domain.AdminActionReject},
			domain.StatusRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.c
			e.Resolve(&c)
			if c.Status != tt.want {
				t.Errorf("status = %q, want %q", c.Status, tt.want)
			}
		})
	}
}
