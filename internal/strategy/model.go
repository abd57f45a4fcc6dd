package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Model-assisted strategy — delegates the decision to an external scoring
// capability and gates on its confidence.
// ---------------------------------------------------------------------------

// Score is the verdict of an external scoring model.
type Score struct {
	Action     Action  `json:"action"`     // BUY, SELL, or "" for hold
	Confidence float64 `json:"confidence"` // [0,1]
}

// ScoreInput is the snapshot handed to the scorer.
type ScoreInput struct {
	Mint   solana.Pubkey `json:"mint"`
	Source string        `json:"source,omitempty"`
	Held   bool          `json:"held"`
	Prices []float64     `json:"prices,omitempty"`
}

// Scorer is the external model capability. Implementations live outside this
// core; tests use StubScorer.
type Scorer interface {
	Score(ctx context.Context, input ScoreInput) (Score, error)
}

// ModelConfig holds the model strategy parameters.
type ModelConfig struct {
	// MinConfidence below which the model's intent is discarded.
	MinConfidence float64 `yaml:"min_confidence"`

	// ScorerURL of the external scoring service (live mode only).
	ScorerURL string `yaml:"scorer_url"`

	// ScorerTimeoutS per scoring call.
	ScorerTimeoutS int `yaml:"scorer_timeout_s"`
}

// DefaultModelConfig returns a 0.7 confidence floor.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{MinConfidence: 0.7}
}

// Model is the model-assisted strategy variant.
//
// Unlike the other variants it does NOT apply the token-freshness/basic
// validation gate: the external model performs its own due diligence on the
// tokens it scores, and double-gating here would veto entries the model was
// specifically trained to find. This bypass is a deliberate policy choice.
type Model struct {
	config ModelConfig
	scorer Scorer
}

// NewModel creates a model-assisted strategy around a scorer.
func NewModel(config ModelConfig, scorer Scorer) *Model {
	return &Model{config: config, scorer: scorer}
}

func (s *Model) Name() string { return "model" }

func (s *Model) Decide(ctx context.Context, event Event, rt Runtime) *TradeIntent {
	input, ok := s.toInput(event)
	if !ok {
		return nil
	}

	score, err := s.scorer.Score(ctx, input)
	if err != nil {
		log.Warn().Err(err).Str("mint", string(input.Mint)).Msg("model: scorer failed, skipping cycle")
		return nil
	}
	if score.Action == "" || score.Confidence < s.config.MinConfidence {
		return nil
	}

	switch score.Action {
	case ActionBuy:
		if rt.IsHeld(input.Mint) || rt.OpenPositions() >= rt.MaxPositions() {
			return nil
		}
	case ActionSell:
		if !rt.IsHeld(input.Mint) {
			return nil
		}
	default:
		return nil
	}

	return &TradeIntent{
		Mint:     input.Mint,
		Action:   score.Action,
		Reason:   fmt.Sprintf("model score %.2f", score.Confidence),
		Strategy: s.Name(),
	}
}

func (s *Model) toInput(event Event) (ScoreInput, bool) {
	switch event.Type {
	case EventDiscovery:
		if event.Meta == nil {
			return ScoreInput{}, false
		}
		return ScoreInput{Mint: event.Meta.Mint, Source: event.Meta.Source}, true
	case EventTick:
		if event.Tick == nil {
			return ScoreInput{}, false
		}
		return ScoreInput{
			Mint:   event.Tick.Mint,
			Held:   event.Tick.Held,
			Prices: event.Tick.Prices,
		}, true
	}
	return ScoreInput{}, false
}

// ---------------------------------------------------------------------------
// Stub scorer (testing)
// ---------------------------------------------------------------------------

// StubScorer returns pre-loaded scores in order, cycling when exhausted.
type StubScorer struct {
	mu     sync.Mutex
	scores []Score
	idx    int
	calls  int
	err    error
}

// NewStubScorer creates a stub scorer with the given responses.
func NewStubScorer(scores ...Score) *StubScorer {
	return &StubScorer{scores: scores}
}

// SetError makes every subsequent Score call fail with err (nil clears).
func (s *StubScorer) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns the number of Score invocations.
func (s *StubScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubScorer) Score(_ context.Context, _ ScoreInput) (Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return Score{}, s.err
	}
	if len(s.scores) == 0 {
		return Score{}, fmt.Errorf("stub scorer has no scores configured")
	}
	score := s.scores[s.idx]
	s.idx = (s.idx + 1) % len(s.scores)
	return score, nil
}
