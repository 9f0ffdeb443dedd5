package suggest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftline/pkg/clients/spyglass"
	"driftline/pkg/logging"
	"driftline/pkg/models"
)

type fakeCatalog struct {
	nodes       map[string]models.ContentNode
	recent      []models.ContentNode
	recentCalls int
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*models.ContentNode, error) {
	if n, ok := f.nodes[id]; ok {
		return &n, nil
	}
	return nil, &models.NotFoundError{Resource: "content", ID: id}
}

func (f *fakeCatalog) ListByIDs(_ context.Context, ids []string) ([]models.ContentNode, error) {
	var out []models.ContentNode
	for _, id := range ids {
		if n, ok := f.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListRecent(_ context.Context, excludeID string, limit int) ([]models.ContentNode, error) {
	f.recentCalls++
	var out []models.ContentNode
	for _, n := range f.recent {
		if n.ID != excludeID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

type fakeRels struct {
	connected map[string]bool
	hints     []models.LinkHint
	created   []models.CreateRelationshipInput
	createErr error
}

func (f *fakeRels) ConnectedIDs(_ context.Context, _ string) (map[string]bool, error) {
	if f.connected == nil {
		return map[string]bool{}, nil
	}
	return f.connected, nil
}

func (f *fakeRels) ListHintsForContent(_ context.Context, _ string, _ int) ([]models.LinkHint, error) {
	return f.hints, nil
}

func (f *fakeRels) Create(_ context.Context, input models.CreateRelationshipInput) (*models.ContentRelationship, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	return &models.ContentRelationship{ID: "rel-" + input.TargetContentID}, nil
}

type fakeClassifier struct {
	results map[string]*spyglass.ClassifyResult
	err     error
	calls   int
}

func (f *fakeClassifier) ClassifyRelationship(_ context.Context, req spyglass.ClassifyRequest) (*spyglass.ClassifyResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[req.Candidate.ID]; ok {
		return r, nil
	}
	return &spyglass.ClassifyResult{Kind: spyglass.KindUnparsed}, nil
}

func testNode(id string, platform models.Platform, title string, published time.Time) models.ContentNode {
	return models.ContentNode{
		ID: id, Platform: platform, ContentType: models.ContentTypeVideo,
		Title: title, PublishedAt: published,
	}
}

func defaultConfig() Config {
	return Config{
		DefaultThreshold:    0.7,
		MaxCandidates:       25,
		MaxClassify:         8,
		CacheTTL:            10 * time.Minute,
		AutoAcceptEnabled:   false,
		AutoAcceptThreshold: 0.95,
	}
}

func TestFindCandidatesUnknownContent(t *testing.T) {
	s := New(&fakeCatalog{}, &fakeRels{}, nil, defaultConfig(), logging.NewLoggerWithService("wake-test"))
	_, err := s.FindCandidates(context.Background(), "ghost", SuggestOptions{})
	assert.True(t, models.IsNotFound(err))
}

func TestFindCandidatesExcludesConnected(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "keyboard cat highlights compilation", now)
	linked := testNode("linked", models.PlatformTikTok, "keyboard cat highlights compilation", now)
	fresh := testNode("fresh", models.PlatformTikTok, "keyboard cat highlights compilation", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "linked": linked, "fresh": fresh},
		recent: []models.ContentNode{linked, fresh},
	}
	rels := &fakeRels{connected: map[string]bool{"linked": true}}
	s := New(catalog, rels, nil, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.1})
	require.NoError(t, err)
	for _, sg := range result.Suggestions {
		assert.NotEqual(t, "linked", sg.TargetContentID)
		assert.NotEqual(t, "src", sg.TargetContentID)
	}
	require.Len(t, result.Suggestions, 1)
	assert.Equal(t, "fresh", result.Suggestions[0].TargetContentID)
}

func TestFindCandidatesThreshold(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "deep dive into sourdough starters", now)
	weak := testNode("weak", models.PlatformYouTube, "sourdough", now.Add(-60*24*time.Hour))

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "weak": weak},
		recent: []models.ContentNode{weak},
	}
	s := New(catalog, &fakeRels{}, nil, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.9})
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
}

func TestFindCandidatesVerdictStands(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "launch trailer breakdown frame by frame", now)
	cand := testNode("cand", models.PlatformTikTok, "launch trailer breakdown frame by frame", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	classifier := &fakeClassifier{results: map[string]*spyglass.ClassifyResult{
		"cand": {Kind: spyglass.KindVerdict, Verdict: &spyglass.Verdict{
			RelationshipType: models.RelationshipReaction,
			Confidence:       0.91,
			Rationale:        "candidate reacts to the trailer",
		}},
	}}
	s := New(catalog, &fakeRels{}, classifier, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	sg := result.Suggestions[0]
	assert.Equal(t, models.RelationshipReaction, sg.RelationshipType)
	assert.InDelta(t, 0.91, sg.Confidence, 1e-9)
	assert.Equal(t, "candidate reacts to the trailer", sg.Rationale)
	assert.Contains(t, sg.Sources, "classifier")
}

func TestFindCandidatesClassifierFailureDegrades(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "weekly variety stream best moments", now)
	cand := testNode("cand", models.PlatformTikTok, "weekly variety stream best moments", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	classifier := &fakeClassifier{err: &models.ExternalServiceError{Service: "spyglass"}}
	s := New(catalog, &fakeRels{}, classifier, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	assert.NotContains(t, result.Suggestions[0].Sources, "classifier")
	assert.Equal(t, 1, classifier.calls)
}

func TestFindCandidatesFromHints(t *testing.T) {
	source := testNode("src", models.PlatformYouTube, "alpha", time.Now())
	hinted := testNode("hinted", models.PlatformTikTok, "completely unrelated metadata", time.Now())

	catalog := &fakeCatalog{nodes: map[string]models.ContentNode{"src": source, "hinted": hinted}}
	rels := &fakeRels{hints: []models.LinkHint{{
		SourceContentID: "src", TargetContentID: "hinted",
		RelationshipType: models.RelationshipRepurposed,
		Platform:         models.PlatformTikTok,
		Confidence:       0.85,
	}}}
	s := New(catalog, rels, nil, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{})
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	sg := result.Suggestions[0]
	assert.Equal(t, "hinted", sg.TargetContentID)
	assert.Equal(t, models.RelationshipRepurposed, sg.RelationshipType)
	assert.InDelta(t, 0.85, sg.Confidence, 1e-9)
	assert.Contains(t, sg.Sources, "hint:tiktok")
}

func TestFindCandidatesCached(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "speedrun world record attempt", now)
	cand := testNode("cand", models.PlatformYouTube, "speedrun world record attempt", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	s := New(catalog, &fakeRels{}, nil, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	_, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5})
	require.NoError(t, err)
	_, err = s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.recentCalls)

	// Invalidation drops every threshold variant for the id.
	s.Invalidate("src")
	_, err = s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.recentCalls)
}

func TestAutoAccept(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "album reaction first listen", now)
	cand := testNode("cand", models.PlatformTikTok, "album reaction first listen", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	rels := &fakeRels{}
	classifier := &fakeClassifier{results: map[string]*spyglass.ClassifyResult{
		"cand": {Kind: spyglass.KindVerdict, Verdict: &spyglass.Verdict{
			RelationshipType: models.RelationshipRepurposed, Confidence: 0.97,
		}},
	}}
	cfg := defaultConfig()
	cfg.AutoAcceptEnabled = true
	s := New(catalog, rels, classifier, cfg, logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5, AutoAccept: true})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	require.Len(t, rels.created, 1)
	assert.Equal(t, models.CreationAISuggested, rels.created[0].CreationMethod)
	assert.Equal(t, "cand", rels.created[0].TargetContentID)
}

func TestAutoAcceptConflictDemotes(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "cooking stream highlight reel", now)
	cand := testNode("cand", models.PlatformTikTok, "cooking stream highlight reel", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	rels := &fakeRels{createErr: &models.ConflictError{Reason: models.ConflictCycle, SourceID: "src", TargetID: "cand"}}
	classifier := &fakeClassifier{results: map[string]*spyglass.ClassifyResult{
		"cand": {Kind: spyglass.KindVerdict, Verdict: &spyglass.Verdict{
			RelationshipType: models.RelationshipRepurposed, Confidence: 0.99,
		}},
	}}
	cfg := defaultConfig()
	cfg.AutoAcceptEnabled = true
	s := New(catalog, rels, classifier, cfg, logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5, AutoAccept: true})
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	require.Len(t, result.Suggestions, 1)
}

func TestAutoAcceptDisabledGlobally(t *testing.T) {
	now := time.Now()
	source := testNode("src", models.PlatformYouTube, "drum cover of the opening theme", now)
	cand := testNode("cand", models.PlatformTikTok, "drum cover of the opening theme", now)

	catalog := &fakeCatalog{
		nodes:  map[string]models.ContentNode{"src": source, "cand": cand},
		recent: []models.ContentNode{cand},
	}
	rels := &fakeRels{}
	classifier := &fakeClassifier{results: map[string]*spyglass.ClassifyResult{
		"cand": {Kind: spyglass.KindVerdict, Verdict: &spyglass.Verdict{
			RelationshipType: models.RelationshipRepurposed, Confidence: 0.99,
		}},
	}}
	s := New(catalog, rels, classifier, defaultConfig(), logging.NewLoggerWithService("wake-test"))

	result, err := s.FindCandidates(context.Background(), "src", SuggestOptions{Threshold: 0.5, AutoAccept: true})
	require.NoError(t, err)
	assert.Empty(t, result.Accepted)
	assert.Empty(t, rels.created)
}

func TestLexicalScore(t *testing.T) {
	now := time.Now()
	a := testNode("a", models.PlatformYouTube, "building a mechanical keyboard from scratch", now)
	b := testNode("b", models.PlatformTikTok, "building a mechanical keyboard from scratch", now)
	c := testNode("c", models.PlatformTikTok, "weekly cooking recap", now)

	assert.Greater(t, lexicalScore(a, b), 0.8)
	assert.Less(t, lexicalScore(a, c), 0.3)
	assert.Zero(t, lexicalScore(a, models.ContentNode{}))
}
