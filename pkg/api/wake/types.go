package wake

import (
	"driftline/pkg/api/common"
	"driftline/pkg/models"
)

// ErrorResponse is the shared error envelope.
type ErrorResponse = common.ErrorResponse

// ValidationErrorResponse carries field-level validation failures.
type ValidationErrorResponse = common.ValidationErrorResponse

// CreateRelationshipRequest is the body for POST /api/relationships.
type CreateRelationshipRequest = models.CreateRelationshipInput

// UpdateRelationshipRequest is the body for PUT /api/relationships/:id.
type UpdateRelationshipRequest = models.UpdateRelationshipInput

// Relationship is a stored content relationship.
type Relationship = models.ContentRelationship

// Family is a built content family.
type Family = models.ContentFamily

// FamilyMetrics is the normalized family rollup.
type FamilyMetrics = models.FamilyMetrics

// Suggestion is a candidate relationship.
type Suggestion = models.Suggestion

// VisGraph is the visualization export payload.
type VisGraph = models.VisGraph
