package graph

import (
	"context"
	"strings"
	"testing"

	"driftline/pkg/models"
)

type stubFamilyStore struct {
	paths       map[string]string
	parentEdges []models.ContentRelationship
	edges       []models.ContentRelationship
	connected   map[string][]string
}

func (s *stubFamilyStore) NodePath(_ context.Context, id string) (string, error) {
	if p, ok := s.paths[id]; ok {
		return p, nil
	}
	return id, nil
}

func (s *stubFamilyStore) DescendantParentEdges(_ context.Context, rootPath string, limit int) ([]models.ContentRelationship, error) {
	var out []models.ContentRelationship
	for _, edge := range s.parentEdges {
		if strings.HasPrefix(edge.Path, rootPath+"/") {
			out = append(out, edge)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubFamilyStore) EdgesAmong(_ context.Context, ids []string) ([]models.ContentRelationship, error) {
	in := make(map[string]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}
	var out []models.ContentRelationship
	for _, edge := range s.edges {
		if in[edge.SourceContentID] && in[edge.TargetContentID] {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (s *stubFamilyStore) ConnectedIDs(_ context.Context, contentID string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, id := range s.connected[contentID] {
		out[id] = true
	}
	return out, nil
}

type stubCatalog struct {
	nodes map[string]models.ContentNode
}

func (s *stubCatalog) FindByID(_ context.Context, id string) (*models.ContentNode, error) {
	if n, ok := s.nodes[id]; ok {
		return &n, nil
	}
	return nil, &models.NotFoundError{Resource: "content", ID: id}
}

func (s *stubCatalog) ListByIDs(_ context.Context, ids []string) ([]models.ContentNode, error) {
	var out []models.ContentNode
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubCatalog) ListRecent(_ context.Context, _ string, _ int) ([]models.ContentNode, error) {
	return nil, nil
}

func parentEdge(source, target, path string) models.ContentRelationship {
	return models.ContentRelationship{
		ID: "edge-" + target, SourceContentID: source, TargetContentID: target,
		RelationshipType: models.RelationshipParent, Path: path,
	}
}

func chainStore() *stubFamilyStore {
	// r -> a -> b through parent edges, plus a lateral reference b ~ a.
	parents := []models.ContentRelationship{
		parentEdge("r", "a", "r/a"),
		parentEdge("a", "b", "r/a/b"),
	}
	return &stubFamilyStore{
		paths: map[string]string{"a": "r/a", "b": "r/a/b"},
		parentEdges: parents,
		edges: append(append([]models.ContentRelationship{}, parents...),
			models.ContentRelationship{ID: "edge-lat", SourceContentID: "b", TargetContentID: "a", RelationshipType: models.RelationshipReference}),
	}
}

func chainCatalog() *stubCatalog {
	return &stubCatalog{nodes: map[string]models.ContentNode{
		"r": {ID: "r", Platform: models.PlatformYouTube, Title: "origin"},
		"a": {ID: "a", Platform: models.PlatformTikTok, Title: "clip"},
		"b": {ID: "b", Platform: models.PlatformInstagram, Title: "repost"},
	}}
}

func TestBuildFamilyFromTrueRoot(t *testing.T) {
	b := NewBuilder(chainStore(), chainCatalog(), FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "r", FamilyOptions{})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	if family.RootID != "r" {
		t.Errorf("root = %q, want r", family.RootID)
	}
	if len(family.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(family.Nodes))
	}
	if len(family.Edges) != 3 {
		t.Errorf("edges = %d, want 3", len(family.Edges))
	}
	wantDepths := map[string]int{"r": 0, "a": 1, "b": 2}
	for _, node := range family.Nodes {
		if node.Depth != wantDepths[node.ID] {
			t.Errorf("node %s depth = %d, want %d", node.ID, node.Depth, wantDepths[node.ID])
		}
	}
}

func TestBuildFamilyFromSubtreeRoot(t *testing.T) {
	// Asking for a mid-tree node returns its subtree with depths rebased.
	b := NewBuilder(chainStore(), chainCatalog(), FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "a", FamilyOptions{})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	if family.RootID != "a" {
		t.Errorf("root = %q, want a", family.RootID)
	}
	if len(family.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2 (a and b)", len(family.Nodes))
	}
	for _, node := range family.Nodes {
		switch node.ID {
		case "a":
			if node.Depth != 0 {
				t.Errorf("subtree root depth = %d, want 0", node.Depth)
			}
		case "b":
			if node.Depth != 1 {
				t.Errorf("child depth = %d, want 1", node.Depth)
			}
		default:
			t.Errorf("unexpected node %s", node.ID)
		}
	}
	// The lateral b -> a edge connects two retrieved nodes, so it stays.
	if len(family.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(family.Edges))
	}
}

func TestBuildFamilyInactiveMember(t *testing.T) {
	store := &stubFamilyStore{
		paths:       map[string]string{"gone": "r/gone"},
		parentEdges: []models.ContentRelationship{parentEdge("r", "gone", "r/gone")},
		edges:       []models.ContentRelationship{parentEdge("r", "gone", "r/gone")},
	}
	catalog := &stubCatalog{nodes: map[string]models.ContentNode{
		"r": {ID: "r", Title: "origin"},
	}}
	b := NewBuilder(store, catalog, FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "r", FamilyOptions{})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	var found bool
	for _, node := range family.Nodes {
		if node.ID == "gone" {
			found = true
			if !node.Inactive {
				t.Error("deleted catalog entry should be marked inactive")
			}
		}
	}
	if !found {
		t.Fatal("inactive member missing from family")
	}
}

func TestBuildFamilySingleNode(t *testing.T) {
	store := &stubFamilyStore{}
	catalog := &stubCatalog{nodes: map[string]models.ContentNode{"solo": {ID: "solo"}}}
	b := NewBuilder(store, catalog, FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "solo", FamilyOptions{})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	if len(family.Nodes) != 1 || family.RootID != "solo" {
		t.Errorf("unexpected family %+v", family)
	}
}

func TestBuildFamilyUnknownContent(t *testing.T) {
	b := NewBuilder(&stubFamilyStore{}, &stubCatalog{}, FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	_, err := b.BuildFamily(context.Background(), "ghost", FamilyOptions{})
	if !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildFamilyLateralOnlyMember(t *testing.T) {
	// The node is gone from the catalog and has no parent edges, but a
	// lateral edge still references it: a single inactive node, not nothing.
	store := &stubFamilyStore{
		edges:     []models.ContentRelationship{{ID: "edge-lat", SourceContentID: "gone", TargetContentID: "other", RelationshipType: models.RelationshipReference}},
		connected: map[string][]string{"gone": {"other"}},
	}
	b := NewBuilder(store, &stubCatalog{}, FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "gone", FamilyOptions{})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	if len(family.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(family.Nodes))
	}
	if !family.Nodes[0].Inactive {
		t.Error("catalog-deleted node should be inactive")
	}
}

func TestBuildFamilyNodeLimit(t *testing.T) {
	store := &stubFamilyStore{
		parentEdges: []models.ContentRelationship{
			parentEdge("r", "a", "r/a"),
			parentEdge("r", "b", "r/b"),
			parentEdge("r", "c", "r/c"),
		},
	}
	b := NewBuilder(store, &stubCatalog{}, FamilyOptions{MaxDepth: 50, MaxNodes: 2})

	_, err := b.BuildFamily(context.Background(), "r", FamilyOptions{})
	if !models.IsResourceLimit(err) {
		t.Fatalf("expected resource limit, got %v", err)
	}
}

func TestBuildFamilyDepthFilter(t *testing.T) {
	store := &stubFamilyStore{
		parentEdges: []models.ContentRelationship{
			parentEdge("r", "a", "r/a"),
			parentEdge("a", "b", "r/a/b"),
			parentEdge("b", "c", "r/a/b/c"),
		},
	}
	catalog := &stubCatalog{nodes: map[string]models.ContentNode{
		"r": {ID: "r"}, "a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"},
	}}
	b := NewBuilder(store, catalog, FamilyOptions{MaxDepth: 50, MaxNodes: 5000})

	family, err := b.BuildFamily(context.Background(), "r", FamilyOptions{MaxDepth: 2})
	if err != nil {
		t.Fatalf("BuildFamily: %v", err)
	}
	for _, node := range family.Nodes {
		if node.ID == "c" {
			t.Error("node beyond max depth should be filtered out")
		}
	}
	if len(family.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(family.Nodes))
	}
}
