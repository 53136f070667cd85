package storage

import (
	"context"
	"time"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
)

// RequestFilter narrows a request listing. Zero-valued fields are ignored.
type RequestFilter struct {
	Status   domain.WorkflowStatus
	VPCID    string
	SubnetID string
	Limit    int
}

// Storage defines the interface for the request and audit store.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// SaveRequest writes a new numbered version row for the request's subnet
	// and refreshes the subnet's "latest" row.
	SaveRequest(ctx context.Context, req *domain.AttachmentRequest) error

	// GetRequest returns the numbered request row with the given id, or
	// domain.ErrNotFound.
	GetRequest(ctx context.Context, id string) (*domain.AttachmentRequest, error)

	// GetLatestRequest returns the subnet's "latest" row, or
	// domain.ErrNotFound.
	GetLatestRequest(ctx context.Context, subnetID string) (*domain.AttachmentRequest, error)

	// ListRequests returns the "latest" rows matching the filter, newest
	// first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]*domain.AttachmentRequest, error)

	// UpdateRequestStatus records an operator decision on every row carrying
	// the request id.
	UpdateRequestStatus(ctx context.Context, id string, status domain.WorkflowStatus, userID string, respondedAt time.Time) error

	// PurgeExpired deletes numbered rows past their expiry. "latest" rows
	// are kept so the newest state of a subnet always survives.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// AppendAudit appends one step-level audit entry.
	AppendAudit(ctx context.Context, rec *domain.AuditRecord) error

	// ListAudit returns the audit trail of one execution in append order.
	ListAudit(ctx context.Context, executionID string) ([]*domain.AuditRecord, error)
}
