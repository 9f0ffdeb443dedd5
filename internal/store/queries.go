package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"driftline/pkg/models"
)

// OutgoingTargets batches one adjacency hop: for each id in ids, the set of
// nodes it points at over edges of any type. Ids with no outgoing edges are
// absent from the result.
func (s *RelationshipStore) OutgoingTargets(ctx context.Context, ids []string) (map[string][]string, error) {
	if len(ids) == 0 {
		return map[string][]string{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_content_id, target_content_id
		FROM wake.content_relationships
		WHERE source_content_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, &models.StorageError{Op: "load outgoing edges", Err: err}
	}
	defer rows.Close()

	out := make(map[string][]string, len(ids))
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, &models.StorageError{Op: "scan outgoing edge", Err: err}
		}
		out[source] = append(out[source], target)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "load outgoing edges", Err: err}
	}
	return out, nil
}

// NodePath resolves a node's hierarchical path outside any transaction:
// the stored path of its incoming parent edge, or its own id when it is a
// family root.
func (s *RelationshipStore) NodePath(ctx context.Context, id string) (string, error) {
	path, err := nodePath(ctx, s.db, id)
	if err != nil {
		return "", &models.StorageError{Op: "resolve node path", Err: err}
	}
	return path, nil
}

// ParentEdge returns the incoming parent edge of a node, or nil when the
// node is a family root.
func (s *RelationshipStore) ParentEdge(ctx context.Context, targetID string) (*models.ContentRelationship, error) {
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE target_content_id = $1 AND relationship_type = 'parent'
	`, targetID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "load parent edge", Err: err}
	}
	return rel, nil
}

// DescendantParentEdges range-scans the path index for every parent edge
// strictly below rootPath, ordered by path. limit bounds the scan; callers
// pass max+1 and treat a full page as a size breach.
func (s *RelationshipStore) DescendantParentEdges(ctx context.Context, rootPath string, limit int) ([]models.ContentRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE relationship_type = 'parent' AND path LIKE $1 || '/%'
		ORDER BY path
		LIMIT $2
	`, rootPath, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "load descendant edges", Err: err}
	}
	defer rows.Close()

	var rels []models.ContentRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, &models.StorageError{Op: "scan descendant edge", Err: err}
		}
		rels = append(rels, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "load descendant edges", Err: err}
	}
	return rels, nil
}

// EdgesAmong returns every edge whose endpoints are both inside the given
// node set, regardless of type. This is how a family picks up its lateral
// derivative and reaction edges on top of the parent skeleton.
func (s *RelationshipStore) EdgesAmong(ctx context.Context, ids []string) ([]models.ContentRelationship, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE source_content_id = ANY($1) AND target_content_id = ANY($1)
		ORDER BY created_at
	`, pq.Array(ids))
	if err != nil {
		return nil, &models.StorageError{Op: "load family edges", Err: err}
	}
	defer rows.Close()

	var rels []models.ContentRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, &models.StorageError{Op: "scan family edge", Err: err}
		}
		rels = append(rels, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "load family edges", Err: err}
	}
	return rels, nil
}

// ConnectedIDs returns every node directly linked to contentID in either
// direction. The suggester excludes these from its candidate pool.
func (s *RelationshipStore) ConnectedIDs(ctx context.Context, contentID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_content_id, target_content_id
		FROM wake.content_relationships
		WHERE source_content_id = $1 OR target_content_id = $1
	`, contentID)
	if err != nil {
		return nil, &models.StorageError{Op: "load connected ids", Err: err}
	}
	defer rows.Close()

	connected := make(map[string]bool)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, &models.StorageError{Op: "scan connected ids", Err: err}
		}
		if source != contentID {
			connected[source] = true
		}
		if target != contentID {
			connected[target] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "load connected ids", Err: err}
	}
	return connected, nil
}
