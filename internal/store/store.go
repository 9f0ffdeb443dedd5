package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"driftline/internal/content"
	"driftline/internal/metrics"
	"driftline/pkg/database"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// CycleValidator rejects edges that would close a directed cycle. Every
// mutation that adds or retypes an edge runs through it before committing.
type CycleValidator interface {
	Validate(ctx context.Context, sourceID, targetID string) error
}

const relationshipColumns = `
	id, source_content_id, target_content_id, relationship_type,
	confidence, creation_method, COALESCE(path, ''), created_at, updated_at`

// RelationshipStore owns wake.content_relationships and the hierarchical
// path index. Mutations are serialized per family root with Postgres
// advisory transaction locks; reads never take the lock.
type RelationshipStore struct {
	db       database.PostgresConn
	content  content.Repository
	guard    CycleValidator
	logger   logging.Logger
	metrics  *metrics.Metrics
	onMutate func(sourceID, targetID string)
}

// New creates a relationship store. The cycle guard is attached afterwards
// with SetCycleGuard because the guard reads adjacency through this store.
func New(db database.PostgresConn, contentRepo content.Repository, logger logging.Logger) *RelationshipStore {
	return &RelationshipStore{db: db, content: contentRepo, logger: logger}
}

// SetCycleGuard attaches the cycle validator used on every structural write.
func (s *RelationshipStore) SetCycleGuard(guard CycleValidator) {
	s.guard = guard
}

// SetMetrics attaches service metrics.
func (s *RelationshipStore) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// OnMutation registers a hook invoked with both edge endpoints after any
// committed create, update or delete. The suggestion cache hangs off this.
func (s *RelationshipStore) OnMutation(fn func(sourceID, targetID string)) {
	s.onMutate = fn
}

func (s *RelationshipStore) countOp(operation, status string) {
	if s.metrics != nil && s.metrics.RelationshipOps != nil {
		s.metrics.RelationshipOps.WithLabelValues(operation, status).Inc()
	}
}

func (s *RelationshipStore) observeRecompute(operation string, rows int64) {
	if s.metrics != nil && s.metrics.PathRecomputeRows != nil {
		s.metrics.PathRecomputeRows.WithLabelValues(operation).Observe(float64(rows))
	}
}

func (s *RelationshipStore) notifyMutation(sourceID, targetID string) {
	if s.onMutate != nil {
		s.onMutate(sourceID, targetID)
	}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func scanRelationship(scan func(dest ...interface{}) error) (*models.ContentRelationship, error) {
	var rel models.ContentRelationship
	err := scan(
		&rel.ID, &rel.SourceContentID, &rel.TargetContentID, &rel.RelationshipType,
		&rel.Confidence, &rel.CreationMethod, &rel.Path, &rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// nodePath resolves a node's hierarchical path: its incoming parent edge's
// path when it has one, its own id when it is a family root.
func nodePath(ctx context.Context, q querier, id string) (string, error) {
	var path string
	err := q.QueryRowContext(ctx, `
		SELECT path
		FROM wake.content_relationships
		WHERE target_content_id = $1 AND relationship_type = 'parent'
	`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return id, nil
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// rootOf extracts the family root id from a hierarchical path.
func rootOf(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// lockFamilies takes advisory transaction locks on the family roots of the
// given node ids and returns each node's path as read under those locks.
// A writer queued on a root can wake after the family it wanted was merged
// under a different root, so paths are re-read after every acquisition and
// the loop repeats until each node's current root is held. Within a round
// roots are locked in sorted order; locks accumulate across rounds and
// release at commit.
func lockFamilies(ctx context.Context, tx *sql.Tx, ids ...string) (map[string]string, error) {
	paths := make(map[string]string, len(ids))
	for _, id := range ids {
		p, err := nodePath(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		paths[id] = p
	}

	held := make(map[string]bool, len(ids))
	for {
		var pending []string
		for _, id := range ids {
			if root := rootOf(paths[id]); !held[root] {
				held[root] = true
				pending = append(pending, root)
			}
		}
		if len(pending) == 0 {
			return paths, nil
		}
		sort.Strings(pending)
		for _, root := range pending {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, root); err != nil {
				return nil, err
			}
		}
		for _, id := range ids {
			p, err := nodePath(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			paths[id] = p
		}
	}
}

// rebaseSubtree rewrites the path prefix of every parent edge below oldPath.
// Runs inside the caller's transaction so the structural change and the
// index stay consistent.
func (s *RelationshipStore) rebaseSubtree(ctx context.Context, tx *sql.Tx, operation, oldPath, newPath string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wake.content_relationships
		SET path = $1 || substr(path, length($2) + 1), updated_at = now()
		WHERE relationship_type = 'parent' AND path LIKE $2 || '/%'
	`, newPath, oldPath)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil {
		s.observeRecompute(operation, rows)
	}
	return nil
}

func validateCreateInput(input models.CreateRelationshipInput) (float64, models.CreationMethod, error) {
	if input.SourceContentID == "" {
		return 0, "", &models.ValidationError{Field: "source_content_id", Reason: "required"}
	}
	if input.TargetContentID == "" {
		return 0, "", &models.ValidationError{Field: "target_content_id", Reason: "required"}
	}
	if !models.ValidRelationshipType(input.RelationshipType) {
		return 0, "", &models.ValidationError{Field: "relationship_type", Reason: fmt.Sprintf("unknown value %q", input.RelationshipType)}
	}

	method := input.CreationMethod
	if method == "" {
		method = models.CreationManual
	}
	if !models.ValidCreationMethod(method) {
		return 0, "", &models.ValidationError{Field: "creation_method", Reason: fmt.Sprintf("unknown value %q", method)}
	}

	var confidence float64
	switch {
	case input.Confidence != nil:
		confidence = *input.Confidence
	case method == models.CreationManual:
		// Manually confirmed edges are certainty by definition.
		confidence = 1.0
	default:
		return 0, "", &models.ValidationError{Field: "confidence", Reason: "required for " + string(method) + " relationships"}
	}
	if confidence < 0 || confidence > 1 {
		return 0, "", &models.ValidationError{Field: "confidence", Reason: "must be within [0,1]"}
	}

	return confidence, method, nil
}

// Create validates, cycle-checks and persists a new relationship. Parent
// edges additionally move the target's subtree under the source: the
// target's path and every descendant path are rewritten in the same
// transaction as the insert.
func (s *RelationshipStore) Create(ctx context.Context, input models.CreateRelationshipInput) (*models.ContentRelationship, error) {
	confidence, method, err := validateCreateInput(input)
	if err != nil {
		s.countOp("create", "invalid")
		return nil, err
	}

	// Both endpoints must exist in the catalog before anything is locked.
	if _, err := s.content.FindByID(ctx, input.SourceContentID); err != nil {
		s.countOp("create", "not_found")
		return nil, err
	}
	if _, err := s.content.FindByID(ctx, input.TargetContentID); err != nil {
		s.countOp("create", "not_found")
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.countOp("create", "error")
		return nil, &models.StorageError{Op: "create relationship", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	paths, err := lockFamilies(ctx, tx, input.SourceContentID, input.TargetContentID)
	if err != nil {
		s.countOp("create", "error")
		return nil, &models.StorageError{Op: "lock families", Err: err}
	}
	sourcePath := paths[input.SourceContentID]
	targetPath := paths[input.TargetContentID]

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM wake.content_relationships
			WHERE source_content_id = $1 AND target_content_id = $2
		)
	`, input.SourceContentID, input.TargetContentID).Scan(&exists)
	if err != nil {
		s.countOp("create", "error")
		return nil, &models.StorageError{Op: "check duplicate", Err: err}
	}
	if exists {
		s.countOp("create", "conflict")
		return nil, &models.ConflictError{Reason: models.ConflictDuplicate, SourceID: input.SourceContentID, TargetID: input.TargetContentID}
	}

	if err := s.guard.Validate(ctx, input.SourceContentID, input.TargetContentID); err != nil {
		s.countOp("create", "conflict")
		return nil, err
	}

	path := sql.NullString{}
	if input.RelationshipType == models.RelationshipParent {
		if targetPath != input.TargetContentID {
			// An existing parent edge already stores the target's chain.
			s.countOp("create", "conflict")
			return nil, &models.ConflictError{Reason: models.ConflictParentExists, SourceID: input.SourceContentID, TargetID: input.TargetContentID}
		}
		path = sql.NullString{String: sourcePath + "/" + input.TargetContentID, Valid: true}
	}

	rel, err := scanRelationship(tx.QueryRowContext(ctx, `
		INSERT INTO wake.content_relationships
			(id, source_content_id, target_content_id, relationship_type, confidence, creation_method, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+relationshipColumns+`
	`, uuid.New().String(), input.SourceContentID, input.TargetContentID,
		input.RelationshipType, confidence, method, path).Scan)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			s.countOp("create", "conflict")
			return nil, &models.ConflictError{Reason: models.ConflictDuplicate, SourceID: input.SourceContentID, TargetID: input.TargetContentID}
		}
		s.countOp("create", "error")
		return nil, &models.StorageError{Op: "insert relationship", Err: err}
	}

	if input.RelationshipType == models.RelationshipParent {
		if err := s.rebaseSubtree(ctx, tx, "create", targetPath, rel.Path); err != nil {
			s.countOp("create", "error")
			return nil, &models.StorageError{Op: "recompute descendant paths", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		s.countOp("create", "error")
		return nil, &models.StorageError{Op: "commit create", Err: err}
	}

	s.countOp("create", "ok")
	s.logger.WithFields(logging.Fields{
		"relationship_id": rel.ID,
		"source":          rel.SourceContentID,
		"target":          rel.TargetContentID,
		"type":            rel.RelationshipType,
		"method":          rel.CreationMethod,
	}).Info("Relationship created")

	s.notifyMutation(rel.SourceContentID, rel.TargetContentID)
	return rel, nil
}

// Get returns a relationship by id.
func (s *RelationshipStore) Get(ctx context.Context, id string) (*models.ContentRelationship, error) {
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE id = $1
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get relationship", Err: err}
	}
	return rel, nil
}

// ListByContent returns every edge touching the node, newest first.
func (s *RelationshipStore) ListByContent(ctx context.Context, contentID string) ([]models.ContentRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE source_content_id = $1 OR target_content_id = $1
		ORDER BY created_at DESC
	`, contentID)
	if err != nil {
		return nil, &models.StorageError{Op: "list relationships", Err: err}
	}
	defer rows.Close()

	var rels []models.ContentRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, &models.StorageError{Op: "scan relationship", Err: err}
		}
		rels = append(rels, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list relationships", Err: err}
	}
	return rels, nil
}

// Update patches a relationship's type or confidence. Structure is
// immutable: retargeting means deleting and recreating the edge. Type
// changes to or from parent rerun cycle validation and rewrite the path
// index transactionally.
func (s *RelationshipStore) Update(ctx context.Context, id string, patch models.UpdateRelationshipInput) (*models.ContentRelationship, error) {
	if patch.RelationshipType == nil && patch.Confidence == nil {
		s.countOp("update", "invalid")
		return nil, &models.ValidationError{Field: "patch", Reason: "no fields to update"}
	}
	if patch.RelationshipType != nil && !models.ValidRelationshipType(*patch.RelationshipType) {
		s.countOp("update", "invalid")
		return nil, &models.ValidationError{Field: "relationship_type", Reason: fmt.Sprintf("unknown value %q", *patch.RelationshipType)}
	}
	if patch.Confidence != nil && (*patch.Confidence < 0 || *patch.Confidence > 1) {
		s.countOp("update", "invalid")
		return nil, &models.ValidationError{Field: "confidence", Reason: "must be within [0,1]"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "update relationship", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRelationship(tx.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE id = $1
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		s.countOp("update", "not_found")
		return nil, &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "load relationship", Err: err}
	}

	paths, err := lockFamilies(ctx, tx, current.SourceContentID, current.TargetContentID)
	if err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "lock families", Err: err}
	}
	sourcePath := paths[current.SourceContentID]
	targetPath := paths[current.TargetContentID]

	// The row may have been patched or rebased while we waited on the
	// locks; endpoints are immutable, so only type, confidence and path
	// can have moved.
	current, err = scanRelationship(tx.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE id = $1
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		s.countOp("update", "not_found")
		return nil, &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "load relationship", Err: err}
	}

	newType := current.RelationshipType
	if patch.RelationshipType != nil {
		newType = *patch.RelationshipType
	}
	newConfidence := current.Confidence
	if patch.Confidence != nil {
		newConfidence = *patch.Confidence
	}

	becomesParent := newType == models.RelationshipParent && current.RelationshipType != models.RelationshipParent
	leavesParent := newType != models.RelationshipParent && current.RelationshipType == models.RelationshipParent

	newPath := sql.NullString{}
	if current.RelationshipType == models.RelationshipParent && !leavesParent {
		newPath = sql.NullString{String: current.Path, Valid: true}
	}

	if becomesParent {
		if targetPath != current.TargetContentID {
			s.countOp("update", "conflict")
			return nil, &models.ConflictError{Reason: models.ConflictParentExists, SourceID: current.SourceContentID, TargetID: current.TargetContentID}
		}
		if err := s.guard.Validate(ctx, current.SourceContentID, current.TargetContentID); err != nil {
			s.countOp("update", "conflict")
			return nil, err
		}
		newPath = sql.NullString{String: sourcePath + "/" + current.TargetContentID, Valid: true}
	}

	updated, err := scanRelationship(tx.QueryRowContext(ctx, `
		UPDATE wake.content_relationships
		SET relationship_type = $1, confidence = $2, path = $3, updated_at = now()
		WHERE id = $4
		RETURNING `+relationshipColumns+`
	`, newType, newConfidence, newPath, id).Scan)
	if err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "update relationship", Err: err}
	}

	switch {
	case becomesParent:
		// The target's subtree was rooted at the target itself; move it
		// under the new chain.
		if err := s.rebaseSubtree(ctx, tx, "update", current.TargetContentID, updated.Path); err != nil {
			s.countOp("update", "error")
			return nil, &models.StorageError{Op: "recompute descendant paths", Err: err}
		}
	case leavesParent:
		// The target becomes a family root; its subtree follows.
		if err := s.rebaseSubtree(ctx, tx, "update", current.Path, current.TargetContentID); err != nil {
			s.countOp("update", "error")
			return nil, &models.StorageError{Op: "recompute descendant paths", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		s.countOp("update", "error")
		return nil, &models.StorageError{Op: "commit update", Err: err}
	}

	s.countOp("update", "ok")
	s.notifyMutation(updated.SourceContentID, updated.TargetContentID)
	return updated, nil
}

// Confirm promotes a suggested or platform-detected edge to a manually
// confirmed one with full confidence.
func (s *RelationshipStore) Confirm(ctx context.Context, id string) (*models.ContentRelationship, error) {
	rel, err := scanRelationship(s.db.QueryRowContext(ctx, `
		UPDATE wake.content_relationships
		SET creation_method = 'manual', confidence = 1.0, updated_at = now()
		WHERE id = $1
		RETURNING `+relationshipColumns+`
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		s.countOp("confirm", "not_found")
		return nil, &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		s.countOp("confirm", "error")
		return nil, &models.StorageError{Op: "confirm relationship", Err: err}
	}
	s.countOp("confirm", "ok")
	s.notifyMutation(rel.SourceContentID, rel.TargetContentID)
	return rel, nil
}

// Delete removes an edge. Deleting a parent edge orphans the target's
// subtree into a new family rooted at the target; paths are rebased in the
// same transaction, never left dangling.
func (s *RelationshipStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "delete relationship", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanRelationship(tx.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE id = $1
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		s.countOp("delete", "not_found")
		return &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "load relationship", Err: err}
	}

	if _, err := lockFamilies(ctx, tx, current.SourceContentID); err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "lock families", Err: err}
	}

	// Re-read under the lock: a concurrent writer may have rebased the
	// edge's path, and the rebase below keys off it.
	current, err = scanRelationship(tx.QueryRowContext(ctx, `
		SELECT `+relationshipColumns+`
		FROM wake.content_relationships
		WHERE id = $1
	`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		s.countOp("delete", "not_found")
		return &models.NotFoundError{Resource: "relationship", ID: id}
	}
	if err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "load relationship", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM wake.content_relationships WHERE id = $1
	`, id); err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "delete relationship", Err: err}
	}

	if current.RelationshipType == models.RelationshipParent {
		if err := s.rebaseSubtree(ctx, tx, "delete", current.Path, current.TargetContentID); err != nil {
			s.countOp("delete", "error")
			return &models.StorageError{Op: "recompute descendant paths", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		s.countOp("delete", "error")
		return &models.StorageError{Op: "commit delete", Err: err}
	}

	s.countOp("delete", "ok")
	s.logger.WithFields(logging.Fields{
		"relationship_id": id,
		"source":          current.SourceContentID,
		"target":          current.TargetContentID,
		"type":            current.RelationshipType,
	}).Info("Relationship deleted")

	s.notifyMutation(current.SourceContentID, current.TargetContentID)
	return nil
}
