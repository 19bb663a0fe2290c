package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultCrossEncoderModel is the scoring model requested from the
	// inference service by default.
	DefaultCrossEncoderModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"

	// defaultScoreTimeout bounds a single pair-scoring request.
	defaultScoreTimeout = 30 * time.Second
)

// HTTPCrossEncoder scores pairs against a cross-encoder inference
// service over HTTP.
type HTTPCrossEncoder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// HTTPOption is a functional option for configuring HTTPCrossEncoder.
type HTTPOption func(*HTTPCrossEncoder)

// WithModel sets the cross-encoder model requested from the service.
func WithModel(model string) HTTPOption {
	return func(c *HTTPCrossEncoder) {
		c.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPCrossEncoder) {
		c.httpClient = client
	}
}

// NewHTTPCrossEncoder creates a cross-encoder client for the scoring
// service at baseURL.
func NewHTTPCrossEncoder(baseURL string, opts ...HTTPOption) *HTTPCrossEncoder {
	c := &HTTPCrossEncoder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   DefaultCrossEncoderModel,
		httpClient: &http.Client{
			Timeout: defaultScoreTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scoreRequest struct {
	Model   string `json:"model"`
	Query   string `json:"query"`
	Passage string `json:"passage"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

// Score posts one (query, passage) pair to the service and returns its
// relevance score (larger is better).
func (c *HTTPCrossEncoder) Score(ctx context.Context, query, passage string) (float64, error) {
	body, err := json.Marshal(scoreRequest{Model: c.model, Query: query, Passage: passage})
	if err != nil {
		return 0, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("cross-encoder API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	return result.Score, nil
}

// ModelName returns the configured cross-encoder model.
func (c *HTTPCrossEncoder) ModelName() string {
	return c.model
}

// Ensure HTTPCrossEncoder implements CrossEncoder.
var _ CrossEncoder = (*HTTPCrossEncoder)(nil)
