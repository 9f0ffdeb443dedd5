package spyglass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"driftline/pkg/clients"
	"driftline/pkg/models"
)

func testRequest() ClassifyRequest {
	return ClassifyRequest{
		Source:    ContentDescriptor{ID: "c-1", Platform: "twitch", ContentType: "livestream", Title: "Launch stream"},
		Candidate: ContentDescriptor{ID: "c-2", Platform: "youtube", ContentType: "clip", Title: "Launch stream highlights"},
	}
}

func noRetryOption() Option {
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 0
	return WithHTTPExecutorConfig(cfg)
}

func TestClassifyRelationship_Verdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/classify/relationship" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing service token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"relationship_type":"derivative","confidence":0.85,"rationale":"clip of the stream"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, ServiceToken: "tok"}, noRetryOption())
	result, err := c.ClassifyRelationship(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if result.Kind != KindVerdict {
		t.Fatalf("expected verdict, got %s", result.Kind)
	}
	if result.Verdict.RelationshipType != models.RelationshipDerivative || result.Verdict.Confidence != 0.85 {
		t.Fatalf("verdict mismatch: %+v", result.Verdict)
	}
}

func TestClassifyRelationship_UnparsedBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not_json", body: "analysis pending"},
		{name: "unknown_type", body: `{"relationship_type":"sibling","confidence":0.9}`},
		{name: "confidence_out_of_range", body: `{"relationship_type":"reaction","confidence":1.7}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, noRetryOption())
			result, err := c.ClassifyRelationship(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("unparsed bodies must not be errors: %v", err)
			}
			if result.Kind != KindUnparsed {
				t.Fatalf("expected unparsed, got %s", result.Kind)
			}
			if string(result.Raw) != tc.body {
				t.Fatalf("raw body not preserved: %q", result.Raw)
			}
			if result.DecodeErr == nil {
				t.Fatal("expected decode error to be retained")
			}
		})
	}
}

func TestClassifyRelationship_ServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.MaxRetries = 1
	cfg.BaseDelay = 1
	cfg.MaxDelay = 1

	c := NewClient(Config{BaseURL: srv.URL}, WithHTTPExecutorConfig(cfg))
	_, err := c.ClassifyRelationship(context.Background(), testRequest())
	if !models.IsExternalService(err) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts (1 + 1 retry), got %d", got)
	}
}
