package rug

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Rug Detector — per-mint anomaly scoring over a bounded tick window.
// ---------------------------------------------------------------------------

// Urgency grades how fast the caller should react.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Reason tags explaining a verdict.
const (
	ReasonPriceDrop      = "extreme price drop"
	ReasonVolumeCollapse = "volume collapse"
)

// Analysis is the stateless result of one tick evaluation. It is recomputed
// every tick and never persisted.
type Analysis struct {
	Mint       solana.Pubkey `json:"mint"`
	IsRugPull  bool          `json:"is_rug_pull"`
	Confidence float64       `json:"confidence"` // [0,1]
	Urgency    Urgency       `json:"urgency"`
	Reasons    []string      `json:"reasons,omitempty"`
}

// Config holds the detection thresholds. These are policy constants, not
// invariants; they are tuned per deployment.
type Config struct {
	// PriceDropPct: fractional drop from the immediately preceding sample
	// that flags a rug (0.45 = -45%).
	PriceDropPct float64 `yaml:"price_drop_pct"`

	// VolumeCollapsePct: fractional drop vs. the short rolling volume
	// average that flags a collapse (0.9 = -90%).
	VolumeCollapsePct float64 `yaml:"volume_collapse_pct"`

	// WindowSize is the per-mint sample capacity.
	WindowSize int `yaml:"window_size"`

	// Retention is how long samples survive Cleanup.
	Retention time.Duration `yaml:"retention"`
}

// DefaultConfig returns conservative thresholds.
func DefaultConfig() Config {
	return Config{
		PriceDropPct:      0.45,
		VolumeCollapsePct: 0.90,
		WindowSize:        30,
		Retention:         30 * time.Minute,
	}
}

// sample is one retained (price, volume, timestamp) observation.
type sample struct {
	price  float64
	volume float64
	ts     time.Time
}

// window is the bounded per-mint ring of recent samples.
type window struct {
	samples []sample
	head    int
	count   int
}

func (w *window) push(s sample) {
	w.samples[w.head] = s
	w.head = (w.head + 1) % len(w.samples)
	if w.count < len(w.samples) {
		w.count++
	}
}

// ordered returns the retained samples oldest-first.
func (w *window) ordered() []sample {
	out := make([]sample, w.count)
	start := w.head - w.count
	for i := 0; i < w.count; i++ {
		out[i] = w.samples[(start+i+len(w.samples))%len(w.samples)]
	}
	return out
}

// Detector scores ticks per mint. Each mint owns a bounded window; memory is
// hard-bounded by WindowSize regardless of token count, and Cleanup evicts
// whole windows past retention.
type Detector struct {
	config Config

	mu      sync.Mutex
	windows map[solana.Pubkey]*window
}

// NewDetector creates a rug detector.
func NewDetector(config Config) *Detector {
	if config.WindowSize <= 0 {
		config.WindowSize = 30
	}
	if config.Retention <= 0 {
		config.Retention = 30 * time.Minute
	}
	return &Detector{
		config:  config,
		windows: make(map[solana.Pubkey]*window),
	}
}

// AnalyzeTick records the tick and evaluates all rules against the prior
// window. With zero or one prior sample no rule can fire and the result is a
// Low/non-rug default.
func (d *Detector) AnalyzeTick(mint solana.Pubkey, price, volume decimal.Decimal) Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[mint]
	if !ok {
		w = &window{samples: make([]sample, d.config.WindowSize)}
		d.windows[mint] = w
	}

	prior := w.ordered()
	w.push(sample{
		price:  price.InexactFloat64(),
		volume: volume.InexactFloat64(),
		ts:     time.Now(),
	})

	analysis := Analysis{Mint: mint, Urgency: UrgencyLow}
	if len(prior) == 0 {
		return analysis
	}

	p := price.InexactFloat64()
	v := volume.InexactFloat64()
	var severities []float64
	urgent := false

	// Rule 1: extreme price drop vs. the immediately preceding sample.
	prev := prior[len(prior)-1]
	if prev.price > 0 {
		drop := (prev.price - p) / prev.price
		if drop >= d.config.PriceDropPct {
			analysis.IsRugPull = true
			analysis.Reasons = append(analysis.Reasons, ReasonPriceDrop)
			// Severity scales from 0.7 at the threshold toward 1.0 at -100%.
			sev := 0.7 + 0.3*(drop-d.config.PriceDropPct)/(1-d.config.PriceDropPct)
			severities = append(severities, clamp01(sev))
			urgent = true
		}
	}

	// Rule 2: volume collapse vs. a short rolling average of prior volume.
	// Needs at least one prior sample; never forces High urgency on its own.
	if avg := avgVolume(prior); avg > 0 {
		collapse := (avg - v) / avg
		if collapse >= d.config.VolumeCollapsePct {
			analysis.IsRugPull = true
			analysis.Reasons = append(analysis.Reasons, ReasonVolumeCollapse)
			severities = append(severities, 0.4)
		}
	}

	if analysis.IsRugPull {
		analysis.Confidence = combineSeverities(severities)
		if urgent {
			analysis.Urgency = UrgencyHigh
		} else {
			analysis.Urgency = UrgencyMedium
		}
		log.Warn().
			Str("mint", string(mint)).
			Float64("confidence", analysis.Confidence).
			Str("urgency", string(analysis.Urgency)).
			Strs("reasons", analysis.Reasons).
			Msg("rug: anomaly detected")
	}

	return analysis
}

// Cleanup evicts samples older than the retention window across all tracked
// mints. It is a pure memory-bounding pass; evaluation within the retention
// horizon is unaffected.
func (d *Detector) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.config.Retention)
	for mint, w := range d.windows {
		kept := &window{samples: make([]sample, d.config.WindowSize)}
		for _, s := range w.ordered() {
			if s.ts.After(cutoff) {
				kept.push(s)
			}
		}
		if kept.count == 0 {
			delete(d.windows, mint)
			continue
		}
		d.windows[mint] = kept
	}
}

// TrackedMints returns how many mints currently hold samples.
func (d *Detector) TrackedMints() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

// avgVolume averages volume over up to the last 5 prior samples.
func avgVolume(prior []sample) float64 {
	n := len(prior)
	if n == 0 {
		return 0
	}
	if n > 5 {
		prior = prior[n-5:]
	}
	sum := 0.0
	for _, s := range prior {
		sum += s.volume
	}
	return sum / float64(len(prior))
}

// combineSeverities sums rule severities weighted toward the strongest one,
// clipped to [0,1].
func combineSeverities(sev []float64) float64 {
	if len(sev) == 0 {
		return 0
	}
	max, total := 0.0, 0.0
	for _, s := range sev {
		total += s
		if s > max {
			max = s
		}
	}
	return clamp01(max + 0.5*(total-max))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
