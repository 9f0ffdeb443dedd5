package models

import (
	"time"
)

// RelationshipType classifies a directed edge between two content items.
type RelationshipType string

const (
	RelationshipParent     RelationshipType = "parent"
	RelationshipDerivative RelationshipType = "derivative"
	RelationshipRepurposed RelationshipType = "repurposed"
	RelationshipReaction   RelationshipType = "reaction"
	RelationshipReference  RelationshipType = "reference"
)

// ValidRelationshipType reports whether t is a known relationship type.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelationshipParent, RelationshipDerivative, RelationshipRepurposed,
		RelationshipReaction, RelationshipReference:
		return true
	default:
		return false
	}
}

// CreationMethod records how a relationship came to exist.
type CreationMethod string

const (
	CreationManual           CreationMethod = "manual"
	CreationAISuggested      CreationMethod = "ai_suggested"
	CreationPlatformDetected CreationMethod = "platform_detected"
)

// ValidCreationMethod reports whether m is a known creation method.
func ValidCreationMethod(m CreationMethod) bool {
	switch m {
	case CreationManual, CreationAISuggested, CreationPlatformDetected:
		return true
	default:
		return false
	}
}

// ContentRelationship is a typed, confidence-scored directed edge from one
// content item to another. Path is the target's materialized ancestor chain
// and is set only on parent edges; the whole edge set forms a DAG.
type ContentRelationship struct {
	ID               string           `json:"id"`
	SourceContentID  string           `json:"source_content_id"`
	TargetContentID  string           `json:"target_content_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       float64          `json:"confidence"`
	CreationMethod   CreationMethod   `json:"creation_method"`
	Path             string           `json:"path,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CreateRelationshipInput is the write model for a new relationship.
type CreateRelationshipInput struct {
	SourceContentID  string           `json:"source_content_id"`
	TargetContentID  string           `json:"target_content_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       *float64         `json:"confidence,omitempty"`
	CreationMethod   CreationMethod   `json:"creation_method,omitempty"`
}

// UpdateRelationshipInput patches an existing relationship. Source and target
// are immutable; callers replace the edge instead of retargeting it.
type UpdateRelationshipInput struct {
	RelationshipType *RelationshipType `json:"relationship_type,omitempty"`
	Confidence       *float64          `json:"confidence,omitempty"`
}

// LinkHint is a platform-supplied linkage detection retained as suggestion
// input. Hints are advisory; they never create edges by themselves unless
// auto-create is explicitly enabled.
type LinkHint struct {
	ID               string           `json:"id"`
	SourceContentID  string           `json:"source_content_id"`
	TargetContentID  string           `json:"target_content_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Platform         Platform         `json:"platform"`
	Confidence       float64          `json:"confidence"`
	DetectedAt       time.Time        `json:"detected_at"`
}

// Suggestion is a candidate relationship produced by the suggester. Advisory
// only; it becomes an edge through the relationship store when confirmed.
type Suggestion struct {
	TargetContentID  string           `json:"target_content_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Confidence       float64          `json:"confidence"`
	Rationale        string           `json:"rationale,omitempty"`
	Sources          []string         `json:"sources,omitempty"`
}
