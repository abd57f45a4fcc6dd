package exits

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/position"
)

// TrailingConfig holds the trailing stop parameters.
type TrailingConfig struct {
	// ActivationGainPct: unrealized gain (percent) that arms the stop.
	ActivationGainPct float64 `yaml:"activation_gain_pct"`

	// TrailPct: distance below the peak (percent) that fires the stop.
	TrailPct float64 `yaml:"trail_pct"`
}

// DefaultTrailingConfig returns the stock 20%-arm / 15%-trail stop.
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		ActivationGainPct: 20,
		TrailPct:          15,
	}
}

// TrailingStop is the stop-sell threshold that rises with the position's
// peak price but never falls. It arms once, then fires when price falls far
// enough from peak while the position is still in profit.
type TrailingStop struct {
	config TrailingConfig
}

// NewTrailingStop creates a trailing stop evaluator.
func NewTrailingStop(config TrailingConfig) *TrailingStop {
	if config.TrailPct <= 0 {
		config.TrailPct = 15
	}
	return &TrailingStop{config: config}
}

// ShouldArm reports whether an unarmed position has crossed the activation
// gain. The caller persists arming through the position book.
func (t *TrailingStop) ShouldArm(pos position.Position) bool {
	return !pos.TrailingArmed && pos.PnLPct >= t.config.ActivationGainPct
}

// Evaluate checks an armed stop. Unarmed positions never fire.
func (t *TrailingStop) Evaluate(pos position.Position) Recommendation {
	if !pos.TrailingArmed || !pos.PeakPrice.IsPositive() {
		return Recommendation{Reason: "trailing stop not armed"}
	}

	stop := pos.PeakPrice.Mul(decimal.NewFromFloat(1 - t.config.TrailPct/100))
	if pos.CurrentPrice.LessThanOrEqual(stop) && pos.CurrentPrice.GreaterThan(pos.EntryPrice) {
		return Recommendation{
			ShouldExit: true,
			Reason: fmt.Sprintf("price %s fell %.0f%% below peak %s",
				pos.CurrentPrice.String(), t.config.TrailPct, pos.PeakPrice.String()),
		}
	}
	return Recommendation{Reason: "trailing stop holding"}
}
