package graph

import (
	"context"
	"errors"
	"testing"

	"driftline/pkg/logging"
	"driftline/pkg/models"
)

type mapAdjacency map[string][]string

func (m mapAdjacency) OutgoingTargets(_ context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, id := range ids {
		if targets, ok := m[id]; ok {
			out[id] = targets
		}
	}
	return out, nil
}

func newTestGuard(adj Adjacency, maxDepth, maxNodes int) *Guard {
	return NewGuard(adj, GuardConfig{MaxDepth: maxDepth, MaxNodes: maxNodes}, logging.NewLoggerWithService("wake-test"))
}

func TestGuardValidate(t *testing.T) {
	// a -> b -> c, d isolated
	adj := mapAdjacency{
		"a": {"b"},
		"b": {"c"},
	}
	g := newTestGuard(adj, 50, 5000)

	tests := []struct {
		name      string
		source    string
		target    string
		wantCycle bool
	}{
		{"acyclic forward edge", "c", "d", false},
		{"new edge into chain head", "d", "a", false},
		{"direct back edge", "b", "a", true},
		{"transitive back edge", "c", "a", true},
		{"closes two-hop cycle", "a", "c", false},
		{"self loop", "a", "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Validate(context.Background(), tt.source, tt.target)
			if tt.wantCycle {
				var conflict *models.ConflictError
				if !models.IsConflict(err) {
					t.Fatalf("expected conflict, got %v", err)
				}
				if !errors.As(err, &conflict) || conflict.Reason != models.ConflictCycle {
					t.Fatalf("expected cycle reason, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGuardCycleThroughMixedTypes(t *testing.T) {
	// Cycle detection ignores edge types: the walk crosses whatever edges
	// exist. b reaches a through some chain, so a -> b is rejected.
	adj := mapAdjacency{
		"b": {"x"},
		"x": {"y"},
		"y": {"a"},
	}
	g := newTestGuard(adj, 50, 5000)

	err := g.Validate(context.Background(), "a", "b")
	if !models.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestGuardDepthLimit(t *testing.T) {
	// Chain longer than the depth cap.
	adj := mapAdjacency{}
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	for i := 0; i < len(ids)-1; i++ {
		adj[ids[i]] = []string{ids[i+1]}
	}
	g := newTestGuard(adj, 3, 5000)

	err := g.Validate(context.Background(), "zz", "n0")
	if !models.IsResourceLimit(err) {
		t.Fatalf("expected resource limit, got %v", err)
	}
}

func TestGuardNodeLimit(t *testing.T) {
	// Fan-out beyond the node cap.
	adj := mapAdjacency{
		"hub": {"a1", "a2", "a3", "a4", "a5"},
	}
	g := newTestGuard(adj, 50, 4)

	err := g.Validate(context.Background(), "zz", "hub")
	if !models.IsResourceLimit(err) {
		t.Fatalf("expected resource limit, got %v", err)
	}
}

func TestGuardRevisitedNodesWalkOnce(t *testing.T) {
	// Diamond: hub -> l, r; both -> sink. sink must not inflate the count.
	adj := mapAdjacency{
		"hub": {"l", "r"},
		"l":   {"sink"},
		"r":   {"sink"},
	}
	g := newTestGuard(adj, 50, 4)

	if err := g.Validate(context.Background(), "zz", "hub"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

