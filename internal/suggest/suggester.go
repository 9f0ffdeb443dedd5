package suggest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"driftline/internal/content"
	"driftline/internal/metrics"
	"driftline/pkg/cache"
	"driftline/pkg/clients/spyglass"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

// RelationshipSource is the slice of the relationship store the suggester
// needs: exclusion data, platform hints, and the create path for
// auto-accepted suggestions.
type RelationshipSource interface {
	ConnectedIDs(ctx context.Context, contentID string) (map[string]bool, error)
	ListHintsForContent(ctx context.Context, contentID string, limit int) ([]models.LinkHint, error)
	Create(ctx context.Context, input models.CreateRelationshipInput) (*models.ContentRelationship, error)
}

// Classifier is the AI collaborator. Satisfied by the spyglass client.
type Classifier interface {
	ClassifyRelationship(ctx context.Context, req spyglass.ClassifyRequest) (*spyglass.ClassifyResult, error)
}

// Config tunes candidate sourcing, classification fan-out and auto-accept.
type Config struct {
	DefaultThreshold    float64
	MaxCandidates       int
	MaxClassify         int
	CacheTTL            time.Duration
	AutoAcceptEnabled   bool
	AutoAcceptThreshold float64
}

// SuggestOptions are per-request overrides. Zero threshold takes the
// configured default; AutoAccept still requires the global enable switch.
type SuggestOptions struct {
	Threshold  float64
	AutoAccept bool
}

// Result is a suggestion run: the advisory list plus ids of any
// relationships auto-accept actually created.
type Result struct {
	Threshold   float64
	Suggestions []models.Suggestion
	Accepted    []string
}

// Suggester proposes relationships for a content item by blending platform
// link hints, lexical similarity over catalog metadata, and spyglass
// verdicts for the strongest candidates. Everything it returns is advisory;
// only the auto-accept path writes, and through the full store pipeline.
type Suggester struct {
	content    content.Repository
	rels       RelationshipSource
	classifier Classifier
	cache      *cache.Cache
	cfg        Config
	logger     logging.Logger
	metrics    *metrics.Metrics
}

func New(contentRepo content.Repository, rels RelationshipSource, classifier Classifier, cfg Config, logger logging.Logger) *Suggester {
	return &Suggester{
		content:    contentRepo,
		rels:       rels,
		classifier: classifier,
		cache: cache.New(cache.Options{
			TTL:        cfg.CacheTTL,
			MaxEntries: 1024,
		}, cache.MetricsHooks{}),
		cfg:    cfg,
		logger: logger,
	}
}

// SetMetrics attaches service metrics.
func (s *Suggester) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Invalidate drops every cached suggestion list for the id, across all
// thresholds. The store's mutation hook calls this for both edge endpoints.
func (s *Suggester) Invalidate(contentID string) {
	s.cache.DeletePrefix("suggest:" + contentID + "|")
}

func (s *Suggester) recordClassifierCall(err error, result *spyglass.ClassifyResult, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case result != nil && result.Kind == spyglass.KindUnparsed:
		status = "unparsed"
	}
	if s.metrics.ClassifierRequests != nil {
		s.metrics.ClassifierRequests.WithLabelValues(status).Inc()
	}
	if s.metrics.ClassifierLatency != nil {
		s.metrics.ClassifierLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

func (s *Suggester) countSuggestion(outcome string) {
	if s.metrics != nil && s.metrics.Suggestions != nil {
		s.metrics.Suggestions.WithLabelValues(outcome).Inc()
	}
}

// FindCandidates returns scored relationship suggestions for a content
// item. Results are cached per (id, threshold) with singleflight dedup;
// auto-accept only runs on a fresh computation, never on a cache hit.
func (s *Suggester) FindCandidates(ctx context.Context, contentID string, opts SuggestOptions) (*Result, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.cfg.DefaultThreshold
	}

	key := fmt.Sprintf("suggest:%s|%.2f", contentID, threshold)
	val, _, err := s.cache.Get(ctx, key, func(ctx context.Context, _ string) (interface{}, bool, error) {
		res, err := s.compute(ctx, contentID, threshold, opts.AutoAccept)
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*Result), nil
}

type candidate struct {
	node      models.ContentNode
	score     float64
	relType   models.RelationshipType
	rationale string
	sources   []string
}

func (s *Suggester) compute(ctx context.Context, contentID string, threshold float64, autoAccept bool) (*Result, error) {
	source, err := s.content.FindByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	connected, err := s.rels.ConnectedIDs(ctx, contentID)
	if err != nil {
		return nil, err
	}

	pool, err := s.gatherCandidates(ctx, *source, connected)
	if err != nil {
		return nil, err
	}

	s.classifyTop(ctx, *source, pool)

	var suggestions []models.Suggestion
	for _, c := range pool {
		if c.score < threshold {
			s.countSuggestion("below_threshold")
			continue
		}
		suggestions = append(suggestions, models.Suggestion{
			TargetContentID:  c.node.ID,
			RelationshipType: c.relType,
			Confidence:       c.score,
			Rationale:        c.rationale,
			Sources:          c.sources,
		})
		s.countSuggestion("emitted")
	}
	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Confidence > suggestions[j].Confidence })

	result := &Result{Threshold: threshold, Suggestions: suggestions}
	if autoAccept && s.cfg.AutoAcceptEnabled {
		result.Accepted = s.autoAccept(ctx, contentID, threshold, suggestions)
	}
	return result, nil
}

// gatherCandidates builds the scored pool: platform hints first, then a
// bounded slice of recent catalog entries, minus the node itself and
// everything already connected to it.
func (s *Suggester) gatherCandidates(ctx context.Context, source models.ContentNode, connected map[string]bool) ([]*candidate, error) {
	byID := make(map[string]*candidate)

	hints, err := s.rels.ListHintsForContent(ctx, source.ID, s.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}
	hintIDs := make([]string, 0, len(hints))
	hintByID := make(map[string]models.LinkHint, len(hints))
	for _, hint := range hints {
		other := hint.TargetContentID
		if other == source.ID {
			other = hint.SourceContentID
		}
		if other == source.ID || connected[other] {
			continue
		}
		if _, ok := hintByID[other]; !ok || hint.Confidence > hintByID[other].Confidence {
			hintByID[other] = hint
		}
		hintIDs = append(hintIDs, other)
	}

	hintNodes, err := s.content.ListByIDs(ctx, hintIDs)
	if err != nil {
		return nil, err
	}
	for _, node := range hintNodes {
		hint := hintByID[node.ID]
		score := hint.Confidence
		if lex := lexicalScore(source, node); lex > score {
			score = lex
		}
		byID[node.ID] = &candidate{
			node:      node,
			score:     score,
			relType:   hint.RelationshipType,
			rationale: fmt.Sprintf("detected on %s with confidence %.2f", hint.Platform, hint.Confidence),
			sources:   []string{"hint:" + string(hint.Platform)},
		}
	}

	recent, err := s.content.ListRecent(ctx, source.ID, s.cfg.MaxCandidates)
	if err != nil {
		return nil, err
	}
	for _, node := range recent {
		if connected[node.ID] || node.ID == source.ID {
			continue
		}
		if existing, ok := byID[node.ID]; ok {
			if lex := lexicalScore(source, node); lex > existing.score {
				existing.score = lex
			}
			existing.sources = append(existing.sources, "lexical")
			continue
		}
		score := lexicalScore(source, node)
		if score == 0 {
			continue
		}
		byID[node.ID] = &candidate{
			node:      node,
			score:     score,
			relType:   heuristicType(source, node),
			rationale: heuristicRationale(score, source, node),
			sources:   []string{"lexical"},
		}
	}

	pool := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		pool = append(pool, c)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].node.ID < pool[j].node.ID
	})
	return pool, nil
}

// classifyTop sends the strongest candidates to spyglass. A parsed verdict
// replaces the heuristic score and type; any failure or unparsable answer
// leaves the candidate as scored, degraded but never fatal.
func (s *Suggester) classifyTop(ctx context.Context, source models.ContentNode, pool []*candidate) {
	if s.classifier == nil {
		return
	}
	limit := s.cfg.MaxClassify
	if limit > len(pool) {
		limit = len(pool)
	}
	for _, c := range pool[:limit] {
		callStart := time.Now()
		result, err := s.classifier.ClassifyRelationship(ctx, spyglass.ClassifyRequest{
			Source:    describe(source),
			Candidate: describe(c.node),
		})
		s.recordClassifierCall(err, result, callStart)
		if err != nil {
			s.logger.WithFields(logging.Fields{
				"source":    source.ID,
				"candidate": c.node.ID,
				"error":     err.Error(),
			}).Warn("Classifier unavailable, keeping heuristic score")
			continue
		}
		if result.Kind != spyglass.KindVerdict {
			s.logger.WithFields(logging.Fields{
				"source":    source.ID,
				"candidate": c.node.ID,
			}).Warn("Classifier answer unparsable, keeping heuristic score")
			continue
		}
		c.score = result.Verdict.Confidence
		c.relType = result.Verdict.RelationshipType
		if result.Verdict.Rationale != "" {
			c.rationale = result.Verdict.Rationale
		}
		c.sources = append(c.sources, "classifier")
	}
}

// autoAccept persists suggestions above the auto-accept bar as ai_suggested
// edges. Conflicts and limit refusals demote the suggestion back to
// advisory rather than failing the request.
func (s *Suggester) autoAccept(ctx context.Context, contentID string, threshold float64, suggestions []models.Suggestion) []string {
	bar := s.cfg.AutoAcceptThreshold
	if threshold > bar {
		bar = threshold
	}

	var accepted []string
	for _, sg := range suggestions {
		if sg.Confidence < bar {
			continue
		}
		confidence := sg.Confidence
		rel, err := s.rels.Create(ctx, models.CreateRelationshipInput{
			SourceContentID:  contentID,
			TargetContentID:  sg.TargetContentID,
			RelationshipType: sg.RelationshipType,
			Confidence:       &confidence,
			CreationMethod:   models.CreationAISuggested,
		})
		if err != nil {
			s.countSuggestion("auto_accept_demoted")
			s.logger.WithFields(logging.Fields{
				"source": contentID,
				"target": sg.TargetContentID,
				"error":  err.Error(),
			}).Info("Auto-accept demoted to advisory")
			continue
		}
		s.countSuggestion("auto_accepted")
		accepted = append(accepted, rel.ID)
	}
	return accepted
}

func describe(node models.ContentNode) spyglass.ContentDescriptor {
	desc := spyglass.ContentDescriptor{
		ID:          node.ID,
		Platform:    string(node.Platform),
		ContentType: string(node.ContentType),
		Title:       node.Title,
		Description: node.Description,
		Tags:        node.Tags,
	}
	if !node.PublishedAt.IsZero() {
		desc.PublishedAt = node.PublishedAt.Format(time.RFC3339)
	}
	return desc
}
