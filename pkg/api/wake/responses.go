package wake

import "time"

// RelationshipResponse wraps a single relationship.
type RelationshipResponse struct {
	Relationship *Relationship `json:"relationship"`
}

// RelationshipsResponse wraps the edges touching one content item.
type RelationshipsResponse struct {
	ContentID     string         `json:"content_id"`
	Relationships []Relationship `json:"relationships"`
}

// DeleteRelationshipResponse confirms a deletion.
type DeleteRelationshipResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// FamilyMetricsResponse wraps a family rollup. GeneratedAt lives on the
// envelope so the metrics value itself stays deterministic for a given
// family state.
type FamilyMetricsResponse struct {
	RootID      string         `json:"root_id"`
	Metrics     *FamilyMetrics `json:"metrics"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// SuggestionsResponse wraps the suggestions for one content item.
type SuggestionsResponse struct {
	ContentID   string       `json:"content_id"`
	Threshold   float64      `json:"threshold"`
	Suggestions []Suggestion `json:"suggestions"`
	Accepted    []string     `json:"accepted,omitempty"`
}
