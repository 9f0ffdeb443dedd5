package store

import (
	"context"

	"github.com/google/uuid"

	"driftline/pkg/models"
)

// UpsertLinkHint records a platform-observed link signal. Repeated
// detections of the same (source, target, platform) keep the highest
// confidence seen and the latest detection time.
func (s *RelationshipStore) UpsertLinkHint(ctx context.Context, hint models.LinkHint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wake.link_hints
			(id, source_content_id, target_content_id, relationship_type, platform, confidence, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_content_id, target_content_id, platform) DO UPDATE
		SET confidence = GREATEST(wake.link_hints.confidence, EXCLUDED.confidence),
		    relationship_type = CASE
		        WHEN EXCLUDED.confidence > wake.link_hints.confidence THEN EXCLUDED.relationship_type
		        ELSE wake.link_hints.relationship_type
		    END,
		    detected_at = GREATEST(wake.link_hints.detected_at, EXCLUDED.detected_at)
	`, uuid.New().String(), hint.SourceContentID, hint.TargetContentID,
		hint.RelationshipType, hint.Platform, hint.Confidence, hint.DetectedAt)
	if err != nil {
		return &models.StorageError{Op: "upsert link hint", Err: err}
	}
	return nil
}

// ListHintsForContent returns hints where the node appears on either side,
// strongest first. The suggester seeds its candidate pool from these.
func (s *RelationshipStore) ListHintsForContent(ctx context.Context, contentID string, limit int) ([]models.LinkHint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_content_id, target_content_id, relationship_type, platform, confidence, detected_at
		FROM wake.link_hints
		WHERE source_content_id = $1 OR target_content_id = $1
		ORDER BY confidence DESC, detected_at DESC
		LIMIT $2
	`, contentID, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list link hints", Err: err}
	}
	defer rows.Close()

	var hints []models.LinkHint
	for rows.Next() {
		var h models.LinkHint
		if err := rows.Scan(&h.ID, &h.SourceContentID, &h.TargetContentID, &h.RelationshipType, &h.Platform, &h.Confidence, &h.DetectedAt); err != nil {
			return nil, &models.StorageError{Op: "scan link hint", Err: err}
		}
		hints = append(hints, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list link hints", Err: err}
	}
	return hints, nil
}
