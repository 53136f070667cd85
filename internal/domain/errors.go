package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used throughout the application.
var (
	// ErrResourceBusy indicates a concurrent modification is in flight on the
	// same hub resource. The step should be retried after backoff.
	ErrResourceBusy = errors.New("resource busy")

	// ErrAttachmentCreationInProgress indicates another execution is already
	// creating the same attachment. The step should be retried after backoff.
	ErrAttachmentCreationInProgress = errors.New("attachment creation in progress")

	// ErrAlreadyConfigured indicates the desired state already exists because
	// a concurrent execution got there first. Callers treat it as success.
	ErrAlreadyConfigured = errors.New("already configured")

	// ErrResourceNotFound indicates a referenced VPC or subnet no longer
	// exists. Benign for detach flows, fatal for attach flows.
	ErrResourceNotFound = errors.New("resource not found")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
)

// IsRetryable reports whether the error is a transient conflict that the
// workflow host should retry with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrResourceBusy) || errors.Is(err, ErrAttachmentCreationInProgress)
}

// IsNotFound reports whether the error means a referenced network resource
// no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}

// IsAlreadyConfigured reports whether the error means the desired state was
// already in place.
func IsAlreadyConfigured(err error) bool {
	return errors.Is(err, ErrAlreadyConfigured)
}

// APIError is the JSON error envelope returned by the HTTP API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RouteTableNotFoundError is returned when a route-table name used in a tag
// does not match any route table on the hub. It is a configuration error and
// is never retried.
type RouteTableNotFoundError struct {
	Names []string
}

func (e *RouteTableNotFoundError) Error() string {
	return fmt.Sprintf("route table(s) not found on the transit gateway: %s", strings.Join(e.Names, ", "))
}

// AmbiguousRouteTableNameError is returned when two or more hub route tables
// share a Name tag, which prevents deterministic association. It is a
// configuration error and is never retried.
type AmbiguousRouteTableNameError struct {
	Names []string
}

func (e *AmbiguousRouteTableNameError) Error() string {
	return fmt.Sprintf("multiple transit gateway route tables are tagged with the name %s; tag each route table with a unique name", strings.Join(e.Names, ", "))
}
