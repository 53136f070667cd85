package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
	"github.com/kmahoney/transit-orchestrator/internal/storage/memory"
)

func request(id, subnetID string, status domain.WorkflowStatus, requestedAt time.Time) *domain.AttachmentRequest {
	return &domain.AttachmentRequest{
		ID:               id,
		SubnetID:         subnetID,
		VPCID:            "vpc-1",
		Region:           "us-east-1",
		TransitGatewayID: "tgw-0abc",
		Status:           status,
		SpokeAccountID:   "111122223333",
		RequestedAt:      requestedAt,
		ExpiresAt:        requestedAt.Add(90 * 24 * time.Hour),
	}
}

func TestSaveRequestVersioning(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	first := request("exec-1", "subnet-a", domain.StatusAutoApproved, now)
	if err := s.SaveRequest(ctx, first); err != nil {
		t.Fatalf("SaveRequest: %v", err)
	}
	if first.Version != "1" {
		t.Errorf("version = %q, want 1", first.Version)
	}

	second := request("exec-2", "subnet-a", domain.StatusRequested, now.Add(time.Minute))
	if err := s.SaveRequest(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second.Version != "2" {
		t.Errorf("version = %q, want 2", second.Version)
	}

	latest, err := s.GetLatestRequest(ctx, "subnet-a")
	if err != nil {
		t.Fatalf("GetLatestRequest: %v", err)
	}
	if latest.ID != "exec-2" || latest.Version != domain.VersionLatest {
		t.Errorf("latest = %q version %q", latest.ID, latest.Version)
	}

	// numbered rows stay addressable by execution id
	old, err := s.GetRequest(ctx, "exec-1")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if old.Version != "1" || old.Status != domain.StatusAutoApproved {
		t.Errorf("old = %+v", old)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.GetRequest(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetLatestRequest(context.Background(), "subnet-x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRequestsFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	s.SaveRequest(ctx, request("exec-1", "subnet-a", domain.StatusRequested, now))
	s.SaveRequest(ctx, request("exec-2", "subnet-b", domain.StatusAutoApproved, now.Add(time.Minute)))
	third := request("exec-3", "subnet-c", domain.StatusRequested, now.Add(2*time.Minute))
	third.VPCID = "vpc-2"
	s.SaveRequest(ctx, third)

	all, err := s.ListRequests(ctx, storage.RequestFilter{})
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d", len(all))
	}
	if all[0].ID != "exec-3" || all[2].ID != "exec-1" {
		t.Errorf("order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	requested, _ := s.ListRequests(ctx, storage.RequestFilter{Status: domain.StatusRequested})
	if len(requested) != 2 {
		t.Errorf("requested = %d", len(requested))
	}
	byVPC, _ := s.ListRequests(ctx, storage.RequestFilter{VPCID: "vpc-2"})
	if len(byVPC) != 1 || byVPC[0].ID != "exec-3" {
		t.Errorf("byVPC = %+v", byVPC)
	}
	limited, _ := s.ListRequests(ctx, storage.RequestFilter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != "exec-3" {
		t.Errorf("limited = %+v", limited)
	}
}

func TestUpdateRequestStatusTouchesAllRows(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	s.SaveRequest(ctx, request("exec-1", "subnet-a", domain.StatusRequested, now))

	decidedAt := now.Add(time.Hour)
	if err := s.UpdateRequestStatus(ctx, "exec-1", domain.StatusApproved, "ops@example.com", decidedAt); err != nil {
		t.Fatalf("UpdateRequestStatus: %v", err)
	}

	numbered, _ := s.GetRequest(ctx, "exec-1")
	latest, _ := s.GetLatestRequest(ctx, "subnet-a")
	for _, req := range []*domain.AttachmentRequest{numbered, latest} {
		if req.Status != domain.StatusApproved || req.UserID != "ops@example.com" || !req.RespondedAt.Equal(decidedAt) {
			t.Errorf("row %q = %+v", req.Version, req)
		}
	}

	if err := s.UpdateRequestStatus(ctx, "nope", domain.StatusApproved, "x", decidedAt); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPurgeExpiredKeepsLatest(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	old := request("exec-1", "subnet-a", domain.StatusAutoApproved, now.Add(-100*24*time.Hour))
	old.ExpiresAt = now.Add(-10 * 24 * time.Hour)
	s.SaveRequest(ctx, old)
	fresh := request("exec-2", "subnet-b", domain.StatusAutoApproved, now)
	s.SaveRequest(ctx, fresh)

	purged, err := s.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d", purged)
	}
	if _, err := s.GetRequest(ctx, "exec-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired numbered row must be gone, err = %v", err)
	}
	// the latest row survives even when its numbered row expired
	if _, err := s.GetLatestRequest(ctx, "subnet-a"); err != nil {
		t.Errorf("latest row must survive purge: %v", err)
	}
	if _, err := s.GetRequest(ctx, "exec-2"); err != nil {
		t.Errorf("unexpired row must survive: %v", err)
	}
}

func TestAuditTrail(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i, step := range []string{"observe-attachment", "reconcile-attachment", "reconcile-routes"} {
		rec := &domain.AuditRecord{
			ID:          string(rune('a' + i)),
			ExecutionID: "exec-1",
			SubnetID:    "subnet-a",
			Step:        step,
			Status:      "ok",
			CreatedAt:   time.Now(),
		}
		if err := s.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}
	s.AppendAudit(ctx, &domain.AuditRecord{ID: "z", ExecutionID: "exec-2", Step: "observe-attachment", Status: "ok"})

	trail, err := s.ListAudit(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("len = %d", len(trail))
	}
	if trail[0].Step != "observe-attachment" || trail[2].Step != "reconcile-routes" {
		t.Errorf("order = %s, %s, %s", trail[0].Step, trail[1].Step, trail[2].Step)
	}
}
