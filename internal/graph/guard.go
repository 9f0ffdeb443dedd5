package graph

import (
	"context"
	"time"

	"driftline/internal/metrics"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// Adjacency is the one-hop edge lookup the guard walks. The relationship
// store satisfies it.
type Adjacency interface {
	OutgoingTargets(ctx context.Context, ids []string) (map[string][]string, error)
}

// GuardConfig bounds the traversal. A graph that exceeds either cap is
// treated as unsafe to modify, not as acyclic.
type GuardConfig struct {
	MaxDepth int
	MaxNodes int
}

// Guard answers one question before any edge is written: does a directed
// walk from the proposed target reach the proposed source? Edges of every
// type count; a cycle through a reference edge is as unwanted as one
// through a parent chain.
type Guard struct {
	adj     Adjacency
	cfg     GuardConfig
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewGuard(adj Adjacency, cfg GuardConfig, logger logging.Logger) *Guard {
	return &Guard{adj: adj, cfg: cfg, logger: logger}
}

// SetMetrics attaches service metrics.
func (g *Guard) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

func (g *Guard) record(result string, visited int, start time.Time) {
	if g.metrics == nil {
		return
	}
	if g.metrics.CycleChecks != nil {
		g.metrics.CycleChecks.WithLabelValues(result).Inc()
	}
	if g.metrics.TraversalDuration != nil {
		g.metrics.TraversalDuration.WithLabelValues("cycle_check").Observe(time.Since(start).Seconds())
	}
	if g.metrics.TraversalNodes != nil {
		g.metrics.TraversalNodes.WithLabelValues("cycle_check").Observe(float64(visited))
	}
}

// Validate walks breadth-first from targetID over outgoing edges and fails
// with a cycle conflict if sourceID is reachable. Hitting a traversal cap
// refuses the write rather than guessing. Callers resolve both ids against
// the catalog before validating; an id with no edges is simply acyclic
// here, not an error.
func (g *Guard) Validate(ctx context.Context, sourceID, targetID string) error {
	start := time.Now()

	if sourceID == targetID {
		g.record("cycle", 0, start)
		return &models.ConflictError{Reason: models.ConflictCycle, SourceID: sourceID, TargetID: targetID}
	}

	visited := map[string]bool{targetID: true}
	frontier := []string{targetID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= g.cfg.MaxDepth {
			g.record("limit", len(visited), start)
			return &models.ResourceLimitError{Limit: "traversal_depth", Max: g.cfg.MaxDepth, SourceID: sourceID}
		}

		edges, err := g.adj.OutgoingTargets(ctx, frontier)
		if err != nil {
			g.record("error", len(visited), start)
			return err
		}

		var next []string
		for _, targets := range edges {
			for _, id := range targets {
				if id == sourceID {
					g.record("cycle", len(visited), start)
					g.logger.WithFields(logging.Fields{
						"source": sourceID,
						"target": targetID,
						"depth":  depth + 1,
					}).Warn("Relationship rejected: would close a cycle")
					return &models.ConflictError{Reason: models.ConflictCycle, SourceID: sourceID, TargetID: targetID}
				}
				if visited[id] {
					continue
				}
				visited[id] = true
				next = append(next, id)
			}
		}
		if len(visited) > g.cfg.MaxNodes {
			g.record("limit", len(visited), start)
			return &models.ResourceLimitError{Limit: "traversal_nodes", Max: g.cfg.MaxNodes, SourceID: sourceID}
		}
		frontier = next
	}

	g.record("ok", len(visited), start)
	return nil
}
