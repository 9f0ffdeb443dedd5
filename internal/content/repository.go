package content

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"driftline/pkg/database"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// Repository reads content items from the catalog. The catalog owns those
// rows; nothing in this service writes them.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.ContentNode, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.ContentNode, error)
	ListRecent(ctx context.Context, excludeID string, limit int) ([]models.ContentNode, error)
}

const contentColumns = `
	id, platform, content_type, title, COALESCE(description, ''), tags,
	views, engagements, shares, likes, comments, metrics_captured_at, published_at`

// PostgresRepository reads catalog.content_items directly.
type PostgresRepository struct {
	db     database.PostgresConn
	logger logging.Logger
}

// NewPostgresRepository creates a catalog reader.
func NewPostgresRepository(db database.PostgresConn, logger logging.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

func scanContentNode(scan func(dest ...interface{}) error) (*models.ContentNode, error) {
	var node models.ContentNode
	var tags pq.StringArray
	err := scan(
		&node.ID, &node.Platform, &node.ContentType, &node.Title, &node.Description, &tags,
		&node.Metrics.Views, &node.Metrics.Engagements, &node.Metrics.Shares,
		&node.Metrics.Likes, &node.Metrics.Comments, &node.Metrics.CapturedAt,
		&node.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	node.Tags = tags
	return &node, nil
}

// FindByID returns a single content item, or NotFoundError.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.ContentNode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM catalog.content_items
		WHERE id = $1
	`, id)

	node, err := scanContentNode(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "content", ID: id}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "find content", Err: err}
	}
	return node, nil
}

// ListByIDs bulk-loads content items. Ids the catalog no longer knows are
// simply absent from the result; callers decide how to treat the gap.
func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]models.ContentNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM catalog.content_items
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, &models.StorageError{Op: "list content by ids", Err: err}
	}
	defer rows.Close()

	var nodes []models.ContentNode
	for rows.Next() {
		node, err := scanContentNode(rows.Scan)
		if err != nil {
			return nil, &models.StorageError{Op: "scan content", Err: err}
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list content by ids", Err: err}
	}
	return nodes, nil
}

// ListRecent returns the most recently published items, excluding one id.
// The suggester uses this as its heuristic candidate pool.
func (r *PostgresRepository) ListRecent(ctx context.Context, excludeID string, limit int) ([]models.ContentNode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM catalog.content_items
		WHERE id <> $1
		ORDER BY published_at DESC
		LIMIT $2
	`, excludeID, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list recent content", Err: err}
	}
	defer rows.Close()

	var nodes []models.ContentNode
	for rows.Next() {
		node, err := scanContentNode(rows.Scan)
		if err != nil {
			return nil, &models.StorageError{Op: "scan content", Err: err}
		}
		nodes = append(nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list recent content", Err: err}
	}
	return nodes, nil
}
