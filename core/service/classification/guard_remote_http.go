package classification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"guard_server/core/domain"
	"guard_server/core/service/normalize"
	"guard_server/pkg/httputil"
	"guard_server/pkg/logger"
	"guard_server/pkg/resilience"
)

// =============================================================================
// Remote HTTP Classifier (zero-shot / attribute scoring endpoints)
// =============================================================================

const maxResponseBytes = 1 << 20

// HTTPClassifierConfig configures the remote endpoint.
type HTTPClassifierConfig struct {
	Endpoint   string
	Timeout    time.Duration
	Candidates []string // defaults to every category
}

// HTTPClassifier posts text and candidate categories to a remote model and
// decodes whatever score shape comes back. Calls go through a circuit breaker.
type HTTPClassifier struct {
	endpoint   string
	candidates []string
	client     *http.Client
	cb         *gobreaker.CircuitBreaker
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

// NewHTTPClassifier creates the HTTP remote strategy.
func NewHTTPClassifier(cfg HTTPClassifierConfig) *HTTPClassifier {
	candidates := cfg.Candidates
	if len(candidates) == 0 {
		candidates = domain.CategoryNames()
	}

	return &HTTPClassifier{
		endpoint:   cfg.Endpoint,
		candidates: candidates,
		client:     httputil.NewClient(httputil.ClassifierClientConfig(cfg.Timeout)),
		cb:         resilience.NewBreaker(resilience.DefaultBreakerConfig("remote-classifier")),
	}
}

// Name returns the classifier name.
func (c *HTTPClassifier) Name() string {
	return "remote-http"
}

// IsCircuitOpen reports whether calls currently fail fast.
func (c *HTTPClassifier) IsCircuitOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

// ClassifyWithToken classifies normalized text. Transport problems return an
// error wrapping domain.ErrTransportFailure; a body without scores returns
// empty labels and no error.
func (c *HTTPClassifier) ClassifyWithToken(ctx context.Context, text, apiToken string) ([]domain.Label, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: no endpoint configured", domain.ErrTransportFailure)
	}

	payload, err := json.Marshal(zeroShotRequest{
		Inputs: normalize.TransportText(text),
		Parameters: zeroShotParameters{
			CandidateLabels: c.candidates,
			MultiLabel:      true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.post(ctx, payload, apiToken)
	})
	if err != nil {
		if resilience.IsRejected(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
		}
		return nil, err
	}

	body := result.([]byte)
	labels, err := DecodeRemoteLabels(body)
	if errors.Is(err, domain.ErrMalformedResponse) {
		logger.WithField("classifier", c.Name()).Warn("remote response carried no scores")
		return []domain.Label{}, nil
	}
	if err != nil {
		return nil, err
	}
	return labels, nil
}

func (c *HTTPClassifier) post(ctx context.Context, payload []byte, apiToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrTransportFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+apiToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}
	body, err := httputil.ReadBody(resp, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportFailure, err)
	}

	// An unparseable body must count against the breaker too.
	if !json.Valid(bytes.TrimSpace(body)) {
		return nil, fmt.Errorf("%w: undecodable response body", domain.ErrTransportFailure)
	}
	return body, nil
}
