package content

import (
	"context"
	"testing"
	"time"

	"driftline/pkg/models"
)

type countingRepo struct {
	nodes map[string]*models.ContentNode
	finds int
}

func (r *countingRepo) FindByID(_ context.Context, id string) (*models.ContentNode, error) {
	r.finds++
	if node, ok := r.nodes[id]; ok {
		return node, nil
	}
	return nil, &models.NotFoundError{Resource: "content", ID: id}
}

func (r *countingRepo) ListByIDs(_ context.Context, ids []string) ([]models.ContentNode, error) {
	var out []models.ContentNode
	for _, id := range ids {
		if node, ok := r.nodes[id]; ok {
			out = append(out, *node)
		}
	}
	return out, nil
}

func (r *countingRepo) ListRecent(_ context.Context, _ string, _ int) ([]models.ContentNode, error) {
	return nil, nil
}

func TestCachedFindByID(t *testing.T) {
	inner := &countingRepo{nodes: map[string]*models.ContentNode{
		"a": {ID: "a", Platform: models.PlatformYouTube},
	}}
	repo := NewCachedRepository(inner, time.Minute, 16)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		node, err := repo.FindByID(ctx, "a")
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if node.ID != "a" {
			t.Errorf("unexpected node %+v", node)
		}
	}
	if inner.finds != 1 {
		t.Errorf("expected a single inner load, got %d", inner.finds)
	}
}

func TestCachedInvalidate(t *testing.T) {
	inner := &countingRepo{nodes: map[string]*models.ContentNode{
		"a": {ID: "a"},
	}}
	repo := NewCachedRepository(inner, time.Minute, 16)
	ctx := context.Background()

	if _, err := repo.FindByID(ctx, "a"); err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	repo.Invalidate("a")
	if _, err := repo.FindByID(ctx, "a"); err != nil {
		t.Fatalf("FindByID after invalidate: %v", err)
	}
	if inner.finds != 2 {
		t.Errorf("expected reload after invalidate, got %d loads", inner.finds)
	}
}

func TestCachedNegativeEntry(t *testing.T) {
	inner := &countingRepo{nodes: map[string]*models.ContentNode{}}
	repo := NewCachedRepository(inner, time.Minute, 16)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := repo.FindByID(ctx, "gone"); !models.IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	}
	if inner.finds != 1 {
		t.Errorf("expected the miss to be cached, got %d loads", inner.finds)
	}
}
