package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	"driftline/internal/content"
	"driftline/internal/metrics"
	"driftline/pkg/models"
)

// FamilyStore is the slice of the relationship store the builder reads.
type FamilyStore interface {
	NodePath(ctx context.Context, id string) (string, error)
	DescendantParentEdges(ctx context.Context, rootPath string, limit int) ([]models.ContentRelationship, error)
	EdgesAmong(ctx context.Context, ids []string) ([]models.ContentRelationship, error)
	ConnectedIDs(ctx context.Context, contentID string) (map[string]bool, error)
}

// FamilyOptions bounds family assembly. Zero values fall back to the
// builder's configured defaults. MaxDepth is relative to the requested
// root, not the family root.
type FamilyOptions struct {
	MaxDepth int
	MaxNodes int
}

// Builder assembles content families: the parent subtree below a node,
// every edge among those members, and catalog metadata for each member.
// Asking for a mid-tree node returns that node's subtree; the path index
// turns the whole retrieval into one range scan instead of a recursive
// walk. Reads are lock-free.
type Builder struct {
	store    FamilyStore
	content  content.Repository
	defaults FamilyOptions
	metrics  *metrics.Metrics
}

func NewBuilder(store FamilyStore, contentRepo content.Repository, defaults FamilyOptions) *Builder {
	return &Builder{store: store, content: contentRepo, defaults: defaults}
}

// SetMetrics attaches service metrics.
func (b *Builder) SetMetrics(m *metrics.Metrics) {
	b.metrics = m
}

func pathDepth(path string) int {
	return strings.Count(path, "/")
}

// BuildFamily returns the family subtree rooted at rootID. Nodes missing
// from the catalog stay in the graph as inactive placeholders so the
// structure never silently loses members.
func (b *Builder) BuildFamily(ctx context.Context, rootID string, opts FamilyOptions) (*models.ContentFamily, error) {
	start := time.Now()
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = b.defaults.MaxDepth
	}
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 {
		maxNodes = b.defaults.MaxNodes
	}

	rootPath, err := b.store.NodePath(ctx, rootID)
	if err != nil {
		return nil, err
	}
	rootDepth := pathDepth(rootPath)

	parentEdges, err := b.store.DescendantParentEdges(ctx, rootPath, maxNodes+1)
	if err != nil {
		return nil, err
	}
	if len(parentEdges) > maxNodes {
		return nil, &models.ResourceLimitError{Limit: "family_nodes", Max: maxNodes, SourceID: rootID}
	}

	depths := map[string]int{rootID: 0}
	paths := map[string]string{rootID: rootPath}
	order := []string{rootID}
	for _, edge := range parentEdges {
		depth := pathDepth(edge.Path) - rootDepth
		if depth > maxDepth {
			continue
		}
		if _, seen := depths[edge.TargetContentID]; !seen {
			order = append(order, edge.TargetContentID)
		}
		depths[edge.TargetContentID] = depth
		paths[edge.TargetContentID] = edge.Path
	}

	edges, err := b.store.EdgesAmong(ctx, order)
	if err != nil {
		return nil, err
	}

	catalog, err := b.content.ListByIDs(ctx, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.ContentNode, len(catalog))
	for _, node := range catalog {
		byID[node.ID] = node
	}

	// A lone id that neither the catalog nor the edge table knows is not a
	// family of one, it is nothing. Edges among the singleton set cannot
	// see lateral edges leaving it, so check both directions explicitly.
	if len(order) == 1 && len(edges) == 0 {
		if _, known := byID[rootID]; !known {
			connected, err := b.store.ConnectedIDs(ctx, rootID)
			if err != nil {
				return nil, err
			}
			if len(connected) == 0 {
				return nil, &models.NotFoundError{Resource: "content", ID: rootID}
			}
		}
	}

	nodes := make([]models.FamilyNode, 0, len(order))
	for _, id := range order {
		fn := models.FamilyNode{Depth: depths[id], Path: paths[id]}
		if node, ok := byID[id]; ok {
			fn.ContentNode = node
		} else {
			fn.ContentNode = models.ContentNode{ID: id}
			fn.Inactive = true
		}
		nodes = append(nodes, fn)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Depth != nodes[j].Depth {
			return nodes[i].Depth < nodes[j].Depth
		}
		return nodes[i].ID < nodes[j].ID
	})

	if b.metrics != nil {
		if b.metrics.TraversalDuration != nil {
			b.metrics.TraversalDuration.WithLabelValues("family_build").Observe(time.Since(start).Seconds())
		}
		if b.metrics.TraversalNodes != nil {
			b.metrics.TraversalNodes.WithLabelValues("family_build").Observe(float64(len(nodes)))
		}
	}

	return &models.ContentFamily{RootID: rootID, Nodes: nodes, Edges: edges}, nil
}
