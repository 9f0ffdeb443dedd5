package models

// FamilyNode is a content node as it appears inside a built family. Inactive
// marks nodes the catalog no longer knows; they keep their place in the graph
// so the family shape survives content deletion.
type FamilyNode struct {
	ContentNode
	Depth    int    `json:"depth"`
	Path     string `json:"path"`
	Inactive bool   `json:"inactive,omitempty"`
}

// ContentFamily is a root content item plus every node reachable from it
// through the path index, with the edges connecting them.
type ContentFamily struct {
	RootID string                `json:"root_id"`
	Nodes  []FamilyNode          `json:"nodes"`
	Edges  []ContentRelationship `json:"edges"`
}

// PlatformBreakdown holds normalized totals for one platform or content type
// within a family.
type PlatformBreakdown struct {
	Nodes        int     `json:"nodes"`
	Views        float64 `json:"views"`
	Engagements  float64 `json:"engagements"`
	ShareOfViews float64 `json:"share_of_views"`
}

// AudienceOverlap is an approximated unique-reach figure. It is derived from
// configured pairwise deduplication percentages, not from user identity, and
// is always flagged as an approximation.
type AudienceOverlap struct {
	EstimatedUniqueReach float64            `json:"estimated_unique_reach"`
	PlatformAudiences    map[string]float64 `json:"platform_audiences"`
	Approximate          bool               `json:"approximate"`
	Method               string             `json:"method"`
}

// FamilyMetrics is the normalized cross-platform rollup for a family.
// Raw counters are weighted by per-platform standardization factors into
// impression-equivalent units before summation.
type FamilyMetrics struct {
	TotalNodes       int                          `json:"total_nodes"`
	InactiveNodes    int                          `json:"inactive_nodes,omitempty"`
	TotalViews       float64                      `json:"total_views"`
	TotalEngagements float64                      `json:"total_engagements"`
	EngagementRate   float64                      `json:"engagement_rate"`
	ByPlatform       map[string]PlatformBreakdown `json:"by_platform"`
	ByContentType    map[string]PlatformBreakdown `json:"by_content_type"`
	AudienceOverlap  AudienceOverlap              `json:"audience_overlap"`
}

// VisNode is a node prepared for rendering: size is scaled against the
// family maximum of the selected metric.
type VisNode struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Platform    string  `json:"platform"`
	ContentType string  `json:"content_type"`
	Depth       int     `json:"depth"`
	Inactive    bool    `json:"inactive,omitempty"`
	Size        float64 `json:"size"`
}

// VisEdge is an edge prepared for rendering, styled by relationship type.
type VisEdge struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Style       string  `json:"style"`
	Provisional bool    `json:"provisional,omitempty"`
}

// VisLayout is a layout hint for the renderer.
type VisLayout struct {
	Mode      string         `json:"mode"`
	Direction string         `json:"direction"`
	Ranks     map[string]int `json:"ranks"`
}

// VisGraph is the visualization-ready form of a built family.
type VisGraph struct {
	RootID string    `json:"root_id"`
	Nodes  []VisNode `json:"nodes"`
	Edges  []VisEdge `json:"edges"`
	Layout VisLayout `json:"layout"`
}
