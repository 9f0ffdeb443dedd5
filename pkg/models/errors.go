package models

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed input: an unknown enum value, a
// confidence outside [0,1], or a missing required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError indicates a content or relationship id that does not resolve.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Conflict reasons
const (
	ConflictDuplicate    = "duplicate"
	ConflictCycle        = "cycle"
	ConflictParentExists = "parent-exists"
)

// ConflictError indicates a structural violation: a duplicate edge, an edge
// that would close a cycle, or a second incoming parent edge.
type ConflictError struct {
	Reason   string
	SourceID string
	TargetID string
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ConflictDuplicate:
		return fmt.Sprintf("relationship %s -> %s already exists", e.SourceID, e.TargetID)
	case ConflictCycle:
		return fmt.Sprintf("relationship %s -> %s would create a cycle", e.SourceID, e.TargetID)
	case ConflictParentExists:
		return fmt.Sprintf("content %s already has a parent relationship", e.TargetID)
	default:
		return fmt.Sprintf("relationship conflict (%s): %s -> %s", e.Reason, e.SourceID, e.TargetID)
	}
}

// ResourceLimitError indicates a traversal or family-size bound was exceeded.
// The operation fails fast instead of walking a pathological graph.
type ResourceLimitError struct {
	Limit    string
	Max      int
	SourceID string
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded (max %d)", e.Limit, e.Max)
}

// ExternalServiceError wraps a downstream collaborator failure.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// StorageError wraps a persistence failure with the original cause preserved.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Predicates for the error taxonomy. Handlers map these to HTTP statuses in
// exactly one place.

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsResourceLimit(err error) bool {
	var rle *ResourceLimitError
	return errors.As(err, &rle)
}

func IsExternalService(err error) bool {
	var ese *ExternalServiceError
	return errors.As(err, &ese)
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
