package trend

import (
	"math"
	"sync"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Trend Filter — trending vs. choppy classification of a price series.
// ---------------------------------------------------------------------------

// MarketState classifies the shape of a price series.
type MarketState string

const (
	StateTrending MarketState = "TRENDING"
	StateChoppy   MarketState = "CHOPPY"
	StateUnknown  MarketState = "UNKNOWN"
)

// Config holds the classification thresholds.
type Config struct {
	// MinSamples below which the state is Unknown.
	MinSamples int `yaml:"min_samples"`

	// TrendingThreshold: trend strength at or above this is Trending.
	TrendingThreshold float64 `yaml:"trending_threshold"`

	// ChoppyReversalRatio: fraction of sign reversals between consecutive
	// deltas at or above which the series is Choppy.
	ChoppyReversalRatio float64 `yaml:"choppy_reversal_ratio"`

	// AllowChoppy permits trading in choppy markets. Unknown and Trending
	// always allow (permissive default).
	AllowChoppy bool `yaml:"allow_choppy"`
}

// DefaultConfig returns permissive defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:          3,
		TrendingThreshold:   0.6,
		ChoppyReversalRatio: 0.5,
		AllowChoppy:         false,
	}
}

// Filter classifies price series per mint. The classification itself is a
// pure function of the series; the filter only remembers the last state per
// mint so ShouldAllowTrade can answer without the series at hand.
type Filter struct {
	config Config

	mu   sync.RWMutex
	last map[solana.Pubkey]MarketState
}

// NewFilter creates a trend filter.
func NewFilter(config Config) *Filter {
	if config.MinSamples <= 0 {
		config.MinSamples = 3
	}
	return &Filter{
		config: config,
		last:   make(map[solana.Pubkey]MarketState),
	}
}

// AnalyzeMarket classifies the series and records the state for the mint.
func (f *Filter) AnalyzeMarket(mint solana.Pubkey, prices []float64) MarketState {
	state := f.classify(prices)
	f.mu.Lock()
	f.last[mint] = state
	f.mu.Unlock()
	return state
}

// CalculateTrendStrength returns the net directional movement normalized by
// total absolute movement, in [0,1]. 1 means every delta points the same
// way; values near 0 mean the series went nowhere.
func (f *Filter) CalculateTrendStrength(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	net, total := 0.0, 0.0
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		net += d
		total += math.Abs(d)
	}
	if total == 0 {
		return 0
	}
	return math.Abs(net) / total
}

// ShouldAllowTrade reports whether trading is allowed given the last known
// state for the mint. Unknown and Trending are permissive; Choppy follows
// the AllowChoppy switch.
func (f *Filter) ShouldAllowTrade(mint solana.Pubkey) bool {
	f.mu.RLock()
	state, ok := f.last[mint]
	f.mu.RUnlock()

	if !ok || state == StateUnknown || state == StateTrending {
		return true
	}
	return f.config.AllowChoppy
}

func (f *Filter) classify(prices []float64) MarketState {
	if len(prices) < f.config.MinSamples {
		return StateUnknown
	}

	// Count sign reversals between consecutive deltas.
	reversals, deltas := 0, 0
	prevSign := 0
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d == 0 {
			continue
		}
		sign := 1
		if d < 0 {
			sign = -1
		}
		deltas++
		if prevSign != 0 && sign != prevSign {
			reversals++
		}
		prevSign = sign
	}

	if deltas > 1 && float64(reversals)/float64(deltas-1) >= f.config.ChoppyReversalRatio {
		return StateChoppy
	}
	if f.CalculateTrendStrength(prices) >= f.config.TrendingThreshold {
		return StateTrending
	}
	return StateChoppy
}
