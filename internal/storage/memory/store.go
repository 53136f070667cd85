// Package memory provides an in-memory implementation of the storage
// interface for testing and single-process use.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
)

// Store implements storage.Storage with in-memory maps.
type Store struct {
	mu       sync.RWMutex
	requests map[string]map[string]*domain.AttachmentRequest // subnet id -> version -> row
	audit    []*domain.AuditRecord
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{requests: make(map[string]map[string]*domain.AttachmentRequest)}
}

// Close is a no-op for the memory store.
func (s *Store) Close() error {
	return nil
}

// SaveRequest writes the next numbered version row for the subnet and
// refreshes the "latest" row.
func (s *Store) SaveRequest(ctx context.Context, req *domain.AttachmentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.requests[req.SubnetID]
	if versions == nil {
		versions = make(map[string]*domain.AttachmentRequest)
		s.requests[req.SubnetID] = versions
	}

	max := int64(0)
	for v := range versions {
		if v == domain.VersionLatest {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > max {
			max = n
		}
	}

	numbered := *req
	numbered.Version = strconv.FormatInt(max+1, 10)
	versions[numbered.Version] = &numbered

	latest := *req
	latest.Version = domain.VersionLatest
	versions[domain.VersionLatest] = &latest

	req.Version = numbered.Version
	return nil
}

// GetRequest returns the numbered request row with the given id.
func (s *Store) GetRequest(ctx context.Context, id string) (*domain.AttachmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, versions := range s.requests {
		for v, req := range versions {
			if v != domain.VersionLatest && req.ID == id {
				cp := *req
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// GetLatestRequest returns the subnet's "latest" row.
func (s *Store) GetLatestRequest(ctx context.Context, subnetID string) (*domain.AttachmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[subnetID][domain.VersionLatest]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// ListRequests returns the "latest" rows matching the filter, newest first.
func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]*domain.AttachmentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AttachmentRequest
	for _, versions := range s.requests {
		req, ok := versions[domain.VersionLatest]
		if !ok {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.VPCID != "" && req.VPCID != filter.VPCID {
			continue
		}
		if filter.SubnetID != "" && req.SubnetID != filter.SubnetID {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateRequestStatus records an operator decision on every row carrying the
// request id.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status domain.WorkflowStatus, userID string, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, versions := range s.requests {
		for _, req := range versions {
			if req.ID == id {
				req.Status = status
				req.UserID = userID
				req.RespondedAt = respondedAt
				found = true
			}
		}
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

// PurgeExpired deletes numbered rows past their expiry.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for subnetID, versions := range s.requests {
		for v, req := range versions {
			if v == domain.VersionLatest {
				continue
			}
			if req.ExpiresAt.Before(now) {
				delete(versions, v)
				purged++
			}
		}
		if len(versions) == 0 {
			delete(s.requests, subnetID)
		}
	}
	return purged, nil
}

// AppendAudit appends one audit entry.
func (s *Store) AppendAudit(ctx context.Context, rec *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.audit = append(s.audit, &cp)
	return nil
}

// ListAudit returns the audit trail of one execution in append order.
func (s *Store) ListAudit(ctx context.Context, executionID string) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.AuditRecord
	for _, rec := range s.audit {
		if rec.ExecutionID == executionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
