package workflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/approval"
	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/interpreter"
	"github.com/kmahoney/transit-orchestrator/internal/network/memorynet"
	"github.com/kmahoney/transit-orchestrator/internal/notify"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
	"github.com/kmahoney/transit-orchestrator/internal/storage/memory"
	"github.com/kmahoney/transit-orchestrator/internal/workflow"
)

const hubID = "tgw-0abc"

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{RequestTTLDays: 90},
		Hub:      config.HubConfig{TransitGatewayID: hubID, Region: "us-east-1"},
		Tags: config.TagConfig{
			Attachment:   "Attach-to-tgw",
			Association:  "Associate-with",
			Propagation:  "Propagate-to",
			Routing:      "Route-to-tgw",
			ApprovalKey:  "ApprovalRequired",
			StatusPrefix: "TransitStatus-",
		},
		Routes: config.RouteConfig{
			Policy:  config.RouteRFC1918,
			RFC1918: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		},
		Workflow: config.WorkflowConfig{PollInterval: time.Millisecond, MaxPolls: 5},
	}
}

func newEngine(f *memorynet.Fabric, store storage.Storage) *workflow.Engine {
	cfg := testConfig()
	log := zerolog.Nop()
	return workflow.New(
		f,
		store,
		notify.NewTagNotifier(cfg.Tags.StatusPrefix, log),
		approval.New(cfg.Tags.ApprovalKey, log),
		interpreter.New(cfg.Tags, log),
		cfg,
		log,
	)
}

func tagEvent(account, resourceARN string, tags map[string]string, changed ...string) domain.TagChangeEvent {
	return domain.TagChangeEvent{
		ID:        "ev-1",
		Account:   account,
		Region:    "us-east-1",
		Time:      time.Now(),
		Resources: []string{resourceARN},
		Detail:    domain.TagEventDetail{Tags: tags, ChangedTagKeys: changed},
	}
}

// fabric with one spoke VPC, a tagged subnet, and two routing domains where
// Flat auto-accepts and Secure requires approval.
func spokeFabric() *memorynet.Fabric {
	f := memorynet.New(hubID)
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Name", Value: "workloads"},
		domain.Tag{Key: "Associate-with", Value: "Flat"},
		domain.Tag{Key: "Propagate-to", Value: "Flat"},
	)
	f.AddSubnetResource("subnet-a", "vpc-1", "us-east-1a",
		domain.Tag{Key: "Attach-to-tgw", Value: ""})
	f.AddSpokeRouteTable("rtb-sub", "vpc-1", "subnet-a")
	f.AddHubRouteTable("tgw-rtb-flat", domain.Tag{Key: "Name", Value: "Flat"})
	f.AddHubRouteTable("tgw-rtb-secure",
		domain.Tag{Key: "Name", Value: "Secure"},
		domain.Tag{Key: "ApprovalRequired", Value: "yes"})
	f.SetAccount("111122223333", "finance", "Root/Finance/")
	return f
}

const subnetARN = "arn:aws:ec2:us-east-1:111122223333:subnet/subnet-a"

func TestSubnetAttachAutoApproved(t *testing.T) {
	f := spokeFabric()
	store := memory.New()
	e := newEngine(f, store)

	c, err := e.HandleTagChange(context.Background(), tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	if c.Status != domain.StatusAutoApproved {
		t.Fatalf("status = %q, comment = %q", c.Status, c.Comment)
	}

	att := f.Attachment(c.TransitAttachmentID)
	if att == nil || !att.HasSubnet("subnet-a") {
		t.Fatal("attachment with subnet-a expected")
	}
	if att.AssociatedRouteTableID != "tgw-rtb-flat" {
		t.Errorf("associated = %q", att.AssociatedRouteTableID)
	}
	props, _ := f.AttachmentPropagations(context.Background(), c.TransitAttachmentID)
	if len(props) != 1 || props[0] != "tgw-rtb-flat" {
		t.Errorf("propagations = %v", props)
	}

	// default routes in the subnet's route table
	rt := f.SpokeTable("rtb-sub")
	if len(rt.Routes) != 3 {
		t.Errorf("routes = %+v", rt.Routes)
	}

	// spoke status tags and attachment labels
	var statusSeen, nameSeen bool
	for _, w := range f.TagWritesFor("subnet-a") {
		if w.Key == "TransitStatus-Status" && w.Value == string(domain.StatusAutoApproved) {
			statusSeen = true
		}
	}
	for _, w := range f.TagWritesFor(c.TransitAttachmentID) {
		if w.Key == "Name" && w.Value == "finance-workloads" {
			nameSeen = true
		}
	}
	if !statusSeen {
		t.Error("status tag not written to subnet")
	}
	if !nameSeen {
		t.Error("attachment Name label not written")
	}

	// persisted latest row
	latest, err := store.GetLatestRequest(context.Background(), "subnet-a")
	if err != nil {
		t.Fatalf("GetLatestRequest: %v", err)
	}
	if latest.Status != domain.StatusAutoApproved || latest.VPCID != "vpc-1" {
		t.Errorf("latest = %+v", latest)
	}
}

func TestApprovalRequiredWithholdsRouting(t *testing.T) {
	f := spokeFabric()
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Associate-with", Value: "Secure"},
		domain.Tag{Key: "Propagate-to", Value: "Secure"},
	)
	store := memory.New()
	e := newEngine(f, store)

	c, err := e.HandleTagChange(context.Background(), tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	if c.Status != domain.StatusRequested {
		t.Fatalf("status = %q", c.Status)
	}

	// the attachment exists but routing changes are withheld
	att := f.Attachment(c.TransitAttachmentID)
	if att == nil {
		t.Fatal("attachment expected")
	}
	if att.AssociatedRouteTableID != "" {
		t.Errorf("association must be withheld, got %q", att.AssociatedRouteTableID)
	}
	props, _ := f.AttachmentPropagations(context.Background(), c.TransitAttachmentID)
	if len(props) != 0 {
		t.Errorf("propagations must be withheld, got %v", props)
	}
}

func TestAdminAcceptAppliesWithheldChanges(t *testing.T) {
	f := spokeFabric()
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Associate-with", Value: "Secure"},
	)
	store := memory.New()
	e := newEngine(f, store)
	ctx := context.Background()

	c, err := e.HandleTagChange(ctx, tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	if c.Status != domain.StatusRequested {
		t.Fatalf("status = %q", c.Status)
	}
	f.SetAttachmentState(c.TransitAttachmentID, domain.AttachmentAvailable)

	decided, err := e.Decide(ctx, c.ExecutionID, domain.AdminActionAccept, "ops@example.com")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != domain.StatusApproved {
		t.Fatalf("status = %q", decided.Status)
	}
	att := f.Attachment(c.TransitAttachmentID)
	if att.AssociatedRouteTableID != "tgw-rtb-secure" {
		t.Errorf("associated = %q", att.AssociatedRouteTableID)
	}

	// the original request row now carries the decision
	req, err := store.GetRequest(ctx, c.ExecutionID)
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != domain.StatusApproved || req.UserID != "ops@example.com" {
		t.Errorf("request = %+v", req)
	}
}

func TestAdminRejectWithholdsChanges(t *testing.T) {
	f := spokeFabric()
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Associate-with", Value: "Secure"},
	)
	store := memory.New()
	e := newEngine(f, store)
	ctx := context.Background()

	c, err := e.HandleTagChange(ctx, tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatal(err)
	}
	f.SetAttachmentState(c.TransitAttachmentID, domain.AttachmentAvailable)

	decided, err := e.Decide(ctx, c.ExecutionID, domain.AdminActionReject, "ops@example.com")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != domain.StatusRejected {
		t.Fatalf("status = %q", decided.Status)
	}
	if att := f.Attachment(c.TransitAttachmentID); att.AssociatedRouteTableID != "" {
		t.Errorf("rejected association must stay withheld, got %q", att.AssociatedRouteTableID)
	}

	// a decided request cannot be decided twice
	if _, err := e.Decide(ctx, c.ExecutionID, domain.AdminActionAccept, "ops"); err == nil {
		t.Error("second decision must fail")
	}
}

func TestConditionalAutoReject(t *testing.T) {
	f := spokeFabric()
	f.AddHubRouteTable("tgw-rtb-locked",
		domain.Tag{Key: "Name", Value: "Locked"},
		domain.Tag{Key: "ApprovalRequired", Value: "conditional"},
		domain.Tag{Key: "ApprovalRule-01-InOUs", Value: "Finance"},
		domain.Tag{Key: "ApprovalRule-01-Association", Value: "reject"},
	)
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Associate-with", Value: "Locked"},
	)
	store := memory.New()
	e := newEngine(f, store)

	c, err := e.HandleTagChange(context.Background(), tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	if c.Status != domain.StatusAutoRejected {
		t.Fatalf("status = %q", c.Status)
	}
	if att := f.Attachment(c.TransitAttachmentID); att.AssociatedRouteTableID != "" {
		t.Errorf("rejected association must not be applied, got %q", att.AssociatedRouteTableID)
	}
}

func TestDetachRemovesEverything(t *testing.T) {
	f := spokeFabric()
	store := memory.New()
	e := newEngine(f, store)
	ctx := context.Background()

	c, err := e.HandleTagChange(ctx, tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatal(err)
	}
	f.SetAttachmentState(c.TransitAttachmentID, domain.AttachmentAvailable)

	// drop the attachment tag from the subnet
	f.AddSubnetResource("subnet-a", "vpc-1", "us-east-1a")

	c2, err := e.HandleTagChange(ctx, tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	if c2.Action != domain.ActionDeleteAttachment {
		t.Errorf("action = %q", c2.Action)
	}
	if att := f.Attachment(c.TransitAttachmentID); att.State != domain.AttachmentDeleted {
		t.Errorf("state = %q", att.State)
	}
	if rt := f.SpokeTable("rtb-sub"); len(rt.Routes) != 0 {
		t.Errorf("default routes must be cleaned up, got %+v", rt.Routes)
	}
}

func TestVPCEventUpdatesBindingsOnly(t *testing.T) {
	f := spokeFabric()
	store := memory.New()
	e := newEngine(f, store)
	ctx := context.Background()

	c, err := e.HandleTagChange(ctx, tagEvent("111122223333", subnetARN, nil, "Attach-to-tgw"))
	if err != nil {
		t.Fatal(err)
	}
	f.SetAttachmentState(c.TransitAttachmentID, domain.AttachmentAvailable)

	// VPC retagged to a different routing domain
	f.AddVPC("vpc-1", "10.1.0.0/16",
		domain.Tag{Key: "Associate-with", Value: "Flat"},
		domain.Tag{Key: "Propagate-to", Value: "Flat,Secure"},
	)
	vpcARN := "arn:aws:ec2:us-east-1:111122223333:vpc/vpc-1"
	c2, err := e.HandleTagChange(ctx, tagEvent("111122223333", vpcARN, nil, "Propagate-to"))
	if err != nil {
		t.Fatalf("HandleTagChange: %v", err)
	}
	// Secure requires approval, so the whole change set is withheld
	if c2.Status != domain.StatusRequested {
		t.Fatalf("status = %q", c2.Status)
	}
	att := f.Attachment(c.TransitAttachmentID)
	if len(att.SubnetIDs) != 1 {
		t.Errorf("vpc event must not touch membership, subnets = %v", att.SubnetIDs)
	}
}
