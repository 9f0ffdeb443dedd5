package graph

import (
	"driftline/pkg/models"
)

const (
	minNodeSize = 10.0
	maxNodeSize = 60.0

	// SizeMetricViews and SizeMetricEngagements select which counter
	// drives node sizing.
	SizeMetricViews       = "views"
	SizeMetricEngagements = "engagements"
)

var edgeStyles = map[models.RelationshipType]string{
	models.RelationshipParent:     "solid",
	models.RelationshipDerivative: "dashed",
	models.RelationshipRepurposed: "dashdot",
	models.RelationshipReaction:   "dotted",
	models.RelationshipReference:  "dotted",
}

// ExportOptions controls the visualization mapping.
type ExportOptions struct {
	SizeMetric string
}

// Exporter turns a built family into a renderer-ready graph: nodes sized by
// metric share, edges styled by type, and a hierarchical layout keyed on
// parent depth. Pure transformation, no persistence.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func nodeMetric(node models.FamilyNode, sizeMetric string) int64 {
	if sizeMetric == SizeMetricEngagements {
		return node.Metrics.EffectiveEngagements()
	}
	return node.Metrics.Views
}

// Export maps a family onto the visualization schema. Node size scales
// linearly with the selected metric against the family maximum; zero-metric
// and inactive nodes sit at the floor.
func (e *Exporter) Export(family *models.ContentFamily, opts ExportOptions) *models.VisGraph {
	sizeMetric := opts.SizeMetric
	if sizeMetric == "" {
		sizeMetric = SizeMetricViews
	}

	var maxMetric int64
	for _, node := range family.Nodes {
		if v := nodeMetric(node, sizeMetric); v > maxMetric {
			maxMetric = v
		}
	}

	nodes := make([]models.VisNode, 0, len(family.Nodes))
	ranks := make(map[string]int, len(family.Nodes))
	for _, node := range family.Nodes {
		label := node.Title
		if label == "" {
			label = node.ID
		}
		size := minNodeSize
		if v := nodeMetric(node, sizeMetric); v > 0 && maxMetric > 0 && !node.Inactive {
			size = minNodeSize + (maxNodeSize-minNodeSize)*float64(v)/float64(maxMetric)
		}
		nodes = append(nodes, models.VisNode{
			ID:          node.ID,
			Label:       label,
			Platform:    string(node.Platform),
			ContentType: string(node.ContentType),
			Depth:       node.Depth,
			Inactive:    node.Inactive,
			Size:        size,
		})
		ranks[node.ID] = node.Depth
	}

	edges := make([]models.VisEdge, 0, len(family.Edges))
	for _, edge := range family.Edges {
		style, ok := edgeStyles[edge.RelationshipType]
		if !ok {
			style = "solid"
		}
		edges = append(edges, models.VisEdge{
			Source:      edge.SourceContentID,
			Target:      edge.TargetContentID,
			Type:        string(edge.RelationshipType),
			Confidence:  edge.Confidence,
			Style:       style,
			Provisional: edge.CreationMethod != models.CreationManual && edge.Confidence < 1.0,
		})
	}

	return &models.VisGraph{
		RootID: family.RootID,
		Nodes:  nodes,
		Edges:  edges,
		Layout: models.VisLayout{Mode: "hierarchical", Direction: "top-down", Ranks: ranks},
	}
}
