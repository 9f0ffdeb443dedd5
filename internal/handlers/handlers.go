package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"driftline/internal/graph"
	"driftline/internal/rollup"
	"driftline/internal/suggest"
	"driftline/pkg/api/wake"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// Relationships is the store surface the handlers drive.
type Relationships interface {
	Create(ctx context.Context, input models.CreateRelationshipInput) (*models.ContentRelationship, error)
	Get(ctx context.Context, id string) (*models.ContentRelationship, error)
	ListByContent(ctx context.Context, contentID string) ([]models.ContentRelationship, error)
	Update(ctx context.Context, id string, patch models.UpdateRelationshipInput) (*models.ContentRelationship, error)
	Confirm(ctx context.Context, id string) (*models.ContentRelationship, error)
	Delete(ctx context.Context, id string) error
}

// FamilyBuilder assembles families for the read endpoints.
type FamilyBuilder interface {
	BuildFamily(ctx context.Context, rootID string, opts graph.FamilyOptions) (*models.ContentFamily, error)
}

// SuggestionFinder produces relationship suggestions.
type SuggestionFinder interface {
	FindCandidates(ctx context.Context, contentID string, opts suggest.SuggestOptions) (*suggest.Result, error)
}

var (
	store      Relationships
	builder    FamilyBuilder
	aggregator *rollup.Aggregator
	exporter   *graph.Exporter
	suggester  SuggestionFinder
	logger     logging.Logger
)

// Init wires the handlers package to its collaborators.
func Init(s Relationships, b FamilyBuilder, agg *rollup.Aggregator, exp *graph.Exporter, sg SuggestionFinder, log logging.Logger) {
	store = s
	builder = b
	aggregator = agg
	exporter = exp
	suggester = sg
	logger = log
}

// writeError is the single mapping point from the domain error taxonomy to
// HTTP. Anything unrecognized is reported as a 500 without leaking cause.
func writeError(c *gin.Context, err error) {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, wake.ValidationErrorResponse{
			Error:  "validation failed",
			Fields: map[string]string{validation.Field: validation.Reason},
		})
		return
	}

	switch {
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, wake.ErrorResponse{Error: err.Error(), Code: "not_found", Service: "wake"})
	case models.IsConflict(err):
		var conflict *models.ConflictError
		errors.As(err, &conflict)
		c.JSON(http.StatusConflict, wake.ErrorResponse{
			Error:   err.Error(),
			Code:    "conflict",
			Service: "wake",
			Details: map[string]interface{}{
				"reason":    conflict.Reason,
				"source_id": conflict.SourceID,
				"target_id": conflict.TargetID,
			},
		})
	case models.IsResourceLimit(err):
		var limit *models.ResourceLimitError
		errors.As(err, &limit)
		c.JSON(http.StatusUnprocessableEntity, wake.ErrorResponse{
			Error:   err.Error(),
			Code:    "resource_limit",
			Service: "wake",
			Details: map[string]interface{}{"limit": limit.Limit, "max": limit.Max},
		})
	case models.IsExternalService(err):
		c.JSON(http.StatusBadGateway, wake.ErrorResponse{Error: "upstream classifier unavailable", Code: "external_service", Service: "wake"})
	default:
		logger.WithFields(logging.Fields{"error": err.Error()}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, wake.ErrorResponse{Error: "internal error", Code: "internal", Service: "wake"})
	}
}

// CreateRelationship handles POST /api/relationships.
func CreateRelationship(c *gin.Context) {
	var req wake.CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wake.ErrorResponse{Error: "invalid request body", Code: "bad_request", Service: "wake"})
		return
	}

	rel, err := store.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wake.RelationshipResponse{Relationship: rel})
}

// GetRelationship handles GET /api/relationships/:id.
func GetRelationship(c *gin.Context) {
	rel, err := store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wake.RelationshipResponse{Relationship: rel})
}

// UpdateRelationship handles PUT /api/relationships/:id.
func UpdateRelationship(c *gin.Context) {
	var req wake.UpdateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, wake.ErrorResponse{Error: "invalid request body", Code: "bad_request", Service: "wake"})
		return
	}

	rel, err := store.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wake.RelationshipResponse{Relationship: rel})
}

// ConfirmRelationship handles POST /api/relationships/:id/confirm.
func ConfirmRelationship(c *gin.Context) {
	rel, err := store.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wake.RelationshipResponse{Relationship: rel})
}

// DeleteRelationship handles DELETE /api/relationships/:id.
func DeleteRelationship(c *gin.Context) {
	id := c.Param("id")
	if err := store.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wake.DeleteRelationshipResponse{Deleted: true, ID: id})
}

// ListContentRelationships handles GET /api/content/:id/relationships.
func ListContentRelationships(c *gin.Context) {
	id := c.Param("id")
	rels, err := store.ListByContent(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if rels == nil {
		rels = []models.ContentRelationship{}
	}
	c.JSON(http.StatusOK, wake.RelationshipsResponse{ContentID: id, Relationships: rels})
}

func familyOptions(c *gin.Context) (graph.FamilyOptions, error) {
	var opts graph.FamilyOptions
	if raw := c.Query("max_depth"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return opts, &models.ValidationError{Field: "max_depth", Reason: "must be a positive integer"}
		}
		opts.MaxDepth = v
	}
	if raw := c.Query("max_nodes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return opts, &models.ValidationError{Field: "max_nodes", Reason: "must be a positive integer"}
		}
		opts.MaxNodes = v
	}
	return opts, nil
}

// GetFamily handles GET /api/content/:id/family.
func GetFamily(c *gin.Context) {
	opts, err := familyOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}

	family, err := builder.BuildFamily(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, family)
}

// GetFamilyMetrics handles GET /api/content/:id/family/metrics.
func GetFamilyMetrics(c *gin.Context) {
	family, err := builder.BuildFamily(c.Request.Context(), c.Param("id"), graph.FamilyOptions{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wake.FamilyMetricsResponse{
		RootID:      family.RootID,
		Metrics:     aggregator.Aggregate(family.Nodes),
		GeneratedAt: time.Now().UTC(),
	})
}

// ExportFamily handles GET /api/content/:id/family/export.
func ExportFamily(c *gin.Context) {
	sizeMetric := c.DefaultQuery("size_metric", graph.SizeMetricViews)
	if sizeMetric != graph.SizeMetricViews && sizeMetric != graph.SizeMetricEngagements {
		writeError(c, &models.ValidationError{Field: "size_metric", Reason: "must be views or engagements"})
		return
	}

	family, err := builder.BuildFamily(c.Request.Context(), c.Param("id"), graph.FamilyOptions{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exporter.Export(family, graph.ExportOptions{SizeMetric: sizeMetric}))
}

// GetSuggestions handles GET /api/content/:id/suggestions.
func GetSuggestions(c *gin.Context) {
	id := c.Param("id")
	opts := suggest.SuggestOptions{}

	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1 {
			writeError(c, &models.ValidationError{Field: "threshold", Reason: "must be within (0,1]"})
			return
		}
		opts.Threshold = v
	}
	if raw := c.Query("auto_accept"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, &models.ValidationError{Field: "auto_accept", Reason: "must be a boolean"})
			return
		}
		opts.AutoAccept = v
	}

	result, err := suggester.FindCandidates(c.Request.Context(), id, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	suggestions := result.Suggestions
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	c.JSON(http.StatusOK, wake.SuggestionsResponse{
		ContentID:   id,
		Threshold:   result.Threshold,
		Suggestions: suggestions,
		Accepted:    result.Accepted,
	})
}
