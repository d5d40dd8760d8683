package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultRiskEndpoint is the Orcho risk generation API.
const DefaultRiskEndpoint = "https://app.orcho.ai/risk/api/v1/generate-risk"

// maxAssessmentBytes caps how much of an upstream response is read.
const maxAssessmentBytes = 1 << 20

// HTTPScorer posts prompts to the Orcho risk endpoint.
type HTTPScorer struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewHTTPScorer creates a scorer for endpoint authenticated with apiKey.
func NewHTTPScorer(endpoint, apiKey string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

type scoreRequest struct {
	Prompt string `json:"prompt"`
}

func (s *HTTPScorer) Score(ctx context.Context, prompt string) (json.RawMessage, error) {
	reqBody, err := json.Marshal(scoreRequest{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("risk service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("risk service returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssessmentBytes))
	if err != nil {
		return nil, fmt.Errorf("read assessment: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("risk service returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

func (s *HTTPScorer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
