package spyglass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"driftline/pkg/clients"
	"driftline/pkg/logging"
	"driftline/pkg/models"

	"github.com/failsafe-go/failsafe-go"
)

// Spyglass is the external AI relationship classifier. Given metadata for a
// source and a candidate content item it answers with a relationship type, a
// confidence and a free-text rationale. The service is advisory: callers must
// treat every error as "no verdict", never as a request failure.

// Config configures the spyglass client.
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
	Logger       logging.Logger
}

// Client is an HTTP client for the spyglass classification service.
type Client struct {
	baseURL      string
	serviceToken string
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	logger       logging.Logger
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithHTTPExecutorConfig overrides retry and circuit-breaker behaviour.
func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
	}
}

// NewClient creates a spyglass client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	executorCfg := clients.DefaultHTTPExecutorConfig()
	executorCfg.CircuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:   "spyglass",
		Logger: cfg.Logger,
	})

	c := &Client{
		baseURL:      cfg.BaseURL,
		serviceToken: cfg.ServiceToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: clients.DefaultTransport(),
		},
		httpExecutor: clients.NewHTTPExecutor(executorCfg),
		logger:       cfg.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentDescriptor is the metadata spyglass sees for one content item.
type ContentDescriptor struct {
	ID          string   `json:"id"`
	Platform    string   `json:"platform"`
	ContentType string   `json:"content_type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
}

// ClassifyRequest asks spyglass whether and how two content items relate.
type ClassifyRequest struct {
	Source    ContentDescriptor `json:"source"`
	Candidate ContentDescriptor `json:"candidate"`
}

// ResultKind discriminates decoded classifier responses.
type ResultKind string

const (
	// KindVerdict is a fully parsed classification.
	KindVerdict ResultKind = "verdict"
	// KindUnparsed is a 200 response whose body did not decode into a
	// verdict. The raw body is carried as data rather than collapsed into
	// a transport error.
	KindUnparsed ResultKind = "unparsed"
)

// Verdict is a parsed classification answer.
type Verdict struct {
	RelationshipType models.RelationshipType `json:"relationship_type"`
	Confidence       float64                 `json:"confidence"`
	Rationale        string                  `json:"rationale,omitempty"`
}

// ClassifyResult is the discriminated outcome of a classify call.
type ClassifyResult struct {
	Kind      ResultKind
	Verdict   *Verdict
	Raw       []byte
	DecodeErr error
}

// ClassifyRelationship posts both content descriptors and decodes the
// answer. Transport failures, non-2xx statuses and breaker-open outcomes are
// returned as *models.ExternalServiceError; an unrecognizable 200 body comes
// back as a KindUnparsed result with a nil error.
func (c *Client) ClassifyRelationship(ctx context.Context, req ClassifyRequest) (*ClassifyResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal classify request: %w", err)
	}

	url := fmt.Sprintf("%s/api/classify/relationship", c.baseURL)

	resp, err := clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.serviceToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.serviceToken)
		}
		return c.client.Do(httpReq)
	})
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "spyglass", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "spyglass", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.ExternalServiceError{
			Service: "spyglass",
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var verdict Verdict
	if decodeErr := json.Unmarshal(raw, &verdict); decodeErr != nil {
		return &ClassifyResult{Kind: KindUnparsed, Raw: raw, DecodeErr: decodeErr}, nil
	}
	if !models.ValidRelationshipType(verdict.RelationshipType) || verdict.Confidence < 0 || verdict.Confidence > 1 {
		return &ClassifyResult{
			Kind:      KindUnparsed,
			Raw:       raw,
			DecodeErr: fmt.Errorf("verdict failed validation: type=%q confidence=%v", verdict.RelationshipType, verdict.Confidence),
		}, nil
	}

	return &ClassifyResult{Kind: KindVerdict, Verdict: &verdict}, nil
}
