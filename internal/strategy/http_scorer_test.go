package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPScorerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var input ScoreInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, modelMint, input.Mint)

		json.NewEncoder(w).Encode(Score{Action: ActionBuy, Confidence: 0.83})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	score, err := scorer.Score(context.Background(), ScoreInput{Mint: modelMint})
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, score.Action)
	assert.InDelta(t, 0.83, score.Confidence, 1e-9)
}

func TestHTTPScorerSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	_, err := scorer.Score(context.Background(), ScoreInput{Mint: modelMint})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
