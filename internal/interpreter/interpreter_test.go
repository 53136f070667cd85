package interpreter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/interpreter"
	"github.com/kmahoney/transit-orchestrator/internal/network/memorynet"
)

func tagConfig() config.TagConfig {
	return config.TagConfig{
		Attachment:       "Attach-to-tgw",
		Association:      "Associate-with",
		Propagation:      "Propagate-to",
		Routing:          "Route-to-tgw",
		ApprovalKey:      "ApprovalRequired",
		CopyToAttachment: "CostCenter,Team",
		StatusPrefix:     "TransitStatus-",
	}
}

func newFabric() *memorynet.Fabric {
	f := memorynet.New("tgw-0abc")
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Name", Value: "workloads"},
		domain.Tag{Key: "Associate-with", Value: "FLAT "},
		domain.Tag{Key: "Propagate-to", Value: "Flat, Secure"},
		domain.Tag{Key: "CostCenter", Value: "1234"},
	)
	f.AddSubnetResource("subnet-a", "vpc-1", "us-east-1a",
		domain.Tag{Key: "Attach-to-tgw", Value: ""})
	f.SetAccount("111122223333", "finance", "Root/Finance/")
	return f
}

func event(resourceARN string, changed ...string) domain.TagChangeEvent {
	return domain.TagChangeEvent{
		ID:        "ev-1",
		Account:   "111122223333",
		Region:    "us-east-1",
		Time:      time.Now(),
		Resources: []string{resourceARN},
		Detail:    domain.TagEventDetail{ChangedTagKeys: changed},
	}
}

func TestInterpretSubnetEvent(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	c, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:subnet/subnet-a", "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if c.ExecutionID == "" {
		t.Error("execution id must be assigned")
	}
	if c.EventSource != domain.EventSourceSubnet || c.SubnetID != "subnet-a" {
		t.Errorf("source = %q, subnet = %q", c.EventSource, c.SubnetID)
	}
	if !c.SubnetTagFound {
		t.Error("attachment tag must be found")
	}
	if c.VPCID != "vpc-1" || c.VPCCidr != "10.1.0.0/16" || c.AvailabilityZone != "us-east-1a" {
		t.Errorf("vpc = %q cidr = %q az = %q", c.VPCID, c.VPCCidr, c.AvailabilityZone)
	}
	if c.AssociateWith != "flat" {
		t.Errorf("AssociateWith = %q, want normalized %q", c.AssociateWith, "flat")
	}
	if len(c.PropagateTo) != 2 || c.PropagateTo[0] != "flat" || c.PropagateTo[1] != "secure" {
		t.Errorf("PropagateTo = %v", c.PropagateTo)
	}
	if c.AccountName != "finance" || c.AccountOUPath != "Root/Finance/" {
		t.Errorf("account = %q ou = %q", c.AccountName, c.AccountOUPath)
	}
}

func TestInterpretBuildsAttachmentLabels(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	c, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:subnet/subnet-a"))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"account-name": "finance",
		"account-ou":   "Root/Finance/",
		"vpc-name":     "workloads",
		"Name":         "finance-workloads",
		"CostCenter":   "1234",
	}
	got := c.AttachmentTagsRequired
	for k, v := range want {
		if got[k] != v {
			t.Errorf("label %s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["Team"]; ok {
		t.Error("absent copy-to-attachment key must not produce a label")
	}
}

func TestInterpretVPCEvent(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	c, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:vpc/vpc-1", "Propagate-to"))
	if err != nil {
		t.Fatal(err)
	}
	if c.EventSource != domain.EventSourceVPC || c.SubnetID != "" {
		t.Errorf("source = %q, subnet = %q", c.EventSource, c.SubnetID)
	}
	if !c.VPCTagFound {
		t.Error("vpc routing-domain tags must be found")
	}
}

func TestInterpretRouteIntent(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())

	f := newFabric()
	f.AddVPC("vpc-1", "10.1.0.0/16", domain.Tag{Key: "Route-to-tgw", Value: ""})
	c, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:vpc/vpc-1"))
	if err != nil {
		t.Fatal(err)
	}
	if c.RouteToHub != domain.RouteIntentCreate {
		t.Errorf("intent = %q, want create", c.RouteToHub)
	}

	// tag removed: the key shows up in the changed list but not on the VPC
	f.AddVPC("vpc-1", "10.1.0.0/16")
	c, err = i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:vpc/vpc-1", "Route-to-tgw"))
	if err != nil {
		t.Fatal(err)
	}
	if c.RouteToHub != domain.RouteIntentDelete {
		t.Errorf("intent = %q, want delete", c.RouteToHub)
	}

	// untouched: neither present nor changed
	c, err = i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:vpc/vpc-1", "Name"))
	if err != nil {
		t.Fatal(err)
	}
	if c.RouteToHub != domain.RouteIntentNone {
		t.Errorf("intent = %q, want none", c.RouteToHub)
	}
}

func TestInterpretVanishedSubnetIsDetach(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	c, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:subnet/subnet-gone"))
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if c.SubnetTagFound {
		t.Error("vanished subnet must read as detached")
	}
}

func TestInterpretRejectsUnknownResource(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	_, err := i.Interpret(context.Background(), f, event("arn:aws:ec2:us-east-1:111122223333:instance/i-012345"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestInterpretAdminDecisionValidatesAction(t *testing.T) {
	i := interpreter.New(tagConfig(), zerolog.Nop())
	f := newFabric()

	ev := domain.AdminDecisionEvent{
		Action:         "approve-ish",
		SpokeAccountID: "111122223333",
		Region:         "us-east-1",
		EventSource:    domain.EventSourceSubnet,
		VPCID:          "vpc-1",
		SubnetID:       "subnet-a",
	}
	if _, err := i.InterpretAdminDecision(context.Background(), f, ev); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}

	ev.Action = domain.AdminActionAccept
	ev.AssociationRouteTable = "secure"
	c, err := i.InterpretAdminDecision(context.Background(), f, ev)
	if err != nil {
		t.Fatalf("InterpretAdminDecision: %v", err)
	}
	if c.AdminAction != domain.AdminActionAccept || c.AssociateWith != "secure" {
		t.Errorf("action = %q, associate = %q", c.AdminAction, c.AssociateWith)
	}
	if !c.SubnetTagFound {
		t.Error("replay must re-read the subnet's attachment tag")
	}
}
