package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPScorer calls an external scoring service. The service receives the
// ScoreInput snapshot as JSON and answers with a Score.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// NewHTTPScorer creates a scorer client for the given endpoint.
func NewHTTPScorer(url string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, input ScoreInput) (Score, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return Score{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Score{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("scorer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Score{}, fmt.Errorf("scorer: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Score{}, fmt.Errorf("scorer: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var score Score
	if err := json.Unmarshal(data, &score); err != nil {
		return Score{}, fmt.Errorf("scorer: %w", err)
	}
	return score, nil
}
