package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "validation", err: &ValidationError{Field: "relationship_type", Reason: "unknown value"}, check: IsValidation},
		{name: "not_found", err: &NotFoundError{Resource: "content", ID: "c-1"}, check: IsNotFound},
		{name: "conflict", err: &ConflictError{Reason: ConflictCycle, SourceID: "a", TargetID: "b"}, check: IsConflict},
		{name: "resource_limit", err: &ResourceLimitError{Limit: "family nodes", Max: 5000}, check: IsResourceLimit},
		{name: "external_service", err: &ExternalServiceError{Service: "spyglass", Err: errors.New("timeout")}, check: IsExternalService},
		{name: "storage", err: &StorageError{Op: "create relationship", Err: errors.New("connection reset")}, check: IsStorage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.check(tc.err) {
				t.Fatalf("predicate rejected its own error: %v", tc.err)
			}
			wrapped := fmt.Errorf("outer: %w", tc.err)
			if !tc.check(wrapped) {
				t.Fatalf("predicate rejected wrapped error: %v", wrapped)
			}
			if tc.check(errors.New("unrelated")) {
				t.Fatal("predicate accepted unrelated error")
			}
		})
	}
}

func TestStorageErrorPreservesCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := &StorageError{Op: "recompute paths", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestConflictErrorMessages(t *testing.T) {
	dup := &ConflictError{Reason: ConflictDuplicate, SourceID: "a", TargetID: "b"}
	if dup.Error() != "relationship a -> b already exists" {
		t.Fatalf("unexpected message: %s", dup.Error())
	}
	cyc := &ConflictError{Reason: ConflictCycle, SourceID: "a", TargetID: "b"}
	if cyc.Error() != "relationship a -> b would create a cycle" {
		t.Fatalf("unexpected message: %s", cyc.Error())
	}
}

func TestEffectiveEngagements(t *testing.T) {
	withCounter := MetricsSnapshot{Engagements: 50, Likes: 10, Comments: 5, Shares: 2}
	if got := withCounter.EffectiveEngagements(); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
	withoutCounter := MetricsSnapshot{Likes: 10, Comments: 5, Shares: 2}
	if got := withoutCounter.EffectiveEngagements(); got != 17 {
		t.Fatalf("expected 17, got %d", got)
	}
}

func TestEnumValidators(t *testing.T) {
	if !ValidRelationshipType(RelationshipParent) || ValidRelationshipType("sibling") {
		t.Fatal("relationship type validation broken")
	}
	if !ValidCreationMethod(CreationPlatformDetected) || ValidCreationMethod("guessed") {
		t.Fatal("creation method validation broken")
	}
}
