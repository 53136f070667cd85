package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

var _ storage.Storage = (*Store)(nil)

// New creates a new SQL store.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const requestColumns = `id, subnet_id, version, vpc_id, region, vpc_cidr, availability_zone,
	transit_gateway_id, association_route_table, propagation_route_tables,
	tag_event_source, action, status, comment, spoke_account_id, user_id,
	requested_at, responded_at, expires_at`

const insertRequest = `INSERT INTO attachment_requests (` + requestColumns + `)
	VALUES (:id, :subnet_id, :version, :vpc_id, :region, :vpc_cidr, :availability_zone,
	:transit_gateway_id, :association_route_table, :propagation_route_tables,
	:tag_event_source, :action, :status, :comment, :spoke_account_id, :user_id,
	:requested_at, :responded_at, :expires_at)`

// SaveRequest writes the next numbered version row for the subnet and
// refreshes the "latest" row in the same transaction.
func (s *Store) SaveRequest(ctx context.Context, req *domain.AttachmentRequest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var max sql.NullInt64
	err = tx.GetContext(ctx, &max, s.db.Rebind(
		`SELECT MAX(CAST(version AS INTEGER)) FROM attachment_requests
		 WHERE subnet_id = ? AND version != ?`),
		req.SubnetID, domain.VersionLatest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading current version: %w", err)
	}

	numbered := *req
	numbered.Version = strconv.FormatInt(max.Int64+1, 10)
	if _, err := tx.NamedExecContext(ctx, insertRequest, &numbered); err != nil {
		return fmt.Errorf("inserting request version %s: %w", numbered.Version, err)
	}

	latest := *req
	latest.Version = domain.VersionLatest
	if _, err := tx.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM attachment_requests WHERE subnet_id = ? AND version = ?`),
		req.SubnetID, domain.VersionLatest); err != nil {
		return fmt.Errorf("clearing latest row: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertRequest, &latest); err != nil {
		return fmt.Errorf("inserting latest row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing request: %w", err)
	}
	req.Version = numbered.Version
	return nil
}

// GetRequest returns the numbered request row with the given id.
func (s *Store) GetRequest(ctx context.Context, id string) (*domain.AttachmentRequest, error) {
	var req domain.AttachmentRequest
	err := s.db.GetContext(ctx, &req, s.db.Rebind(
		`SELECT `+requestColumns+` FROM attachment_requests
		 WHERE id = ? AND version != ?`), id, domain.VersionLatest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting request %s: %w", id, err)
	}
	return &req, nil
}

// GetLatestRequest returns the subnet's "latest" row.
func (s *Store) GetLatestRequest(ctx context.Context, subnetID string) (*domain.AttachmentRequest, error) {
	var req domain.AttachmentRequest
	err := s.db.GetContext(ctx, &req, s.db.Rebind(
		`SELECT `+requestColumns+` FROM attachment_requests
		 WHERE subnet_id = ? AND version = ?`), subnetID, domain.VersionLatest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest request for %s: %w", subnetID, err)
	}
	return &req, nil
}

// ListRequests returns the "latest" rows matching the filter, newest first.
func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]*domain.AttachmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM attachment_requests WHERE version = ?`
	args := []any{domain.VersionLatest}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.VPCID != "" {
		query += " AND vpc_id = ?"
		args = append(args, filter.VPCID)
	}
	if filter.SubnetID != "" {
		query += " AND subnet_id = ?"
		args = append(args, filter.SubnetID)
	}
	query += " ORDER BY requested_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var requests []*domain.AttachmentRequest
	if err := s.db.SelectContext(ctx, &requests, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	return requests, nil
}

// UpdateRequestStatus records an operator decision on every row carrying the
// request id, including the subnet's "latest" row when it still points at
// this request.
func (s *Store) UpdateRequestStatus(ctx context.Context, id string, status domain.WorkflowStatus, userID string, respondedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE attachment_requests SET status = ?, user_id = ?, responded_at = ? WHERE id = ?`),
		status, userID, respondedAt, id)
	if err != nil {
		return fmt.Errorf("updating request %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PurgeExpired deletes numbered rows past their expiry.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM attachment_requests WHERE version != ? AND expires_at < ?`),
		domain.VersionLatest, now)
	if err != nil {
		return 0, fmt.Errorf("purging expired requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AppendAudit appends one audit entry.
func (s *Store) AppendAudit(ctx context.Context, rec *domain.AuditRecord) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO audit_records (id, execution_id, subnet_id, vpc_id, step, status, detail, created_at)
		 VALUES (:id, :execution_id, :subnet_id, :vpc_id, :step, :status, :detail, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail of one execution in append order.
func (s *Store) ListAudit(ctx context.Context, executionID string) ([]*domain.AuditRecord, error) {
	var records []*domain.AuditRecord
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(
		`SELECT id, execution_id, subnet_id, vpc_id, step, status, detail, created_at
		 FROM audit_records WHERE execution_id = ? ORDER BY created_at, id`), executionID)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	return records, nil
}
