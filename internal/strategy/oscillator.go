package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Oscillator strategy — bounded 0-100 momentum oscillator (RSI, Wilder's
// smoothing). Sells only on oscillator-derived signals; hold duration is
// irrelevant to this variant (time-based exits are the TimeExitPolicy's job).
// ---------------------------------------------------------------------------

// OscillatorConfig holds the oscillator thresholds.
type OscillatorConfig struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
	Midpoint   float64 `yaml:"midpoint"`
}

// DefaultOscillatorConfig returns the stock 14/30/70 setup.
func DefaultOscillatorConfig() OscillatorConfig {
	return OscillatorConfig{
		Period:     14,
		Oversold:   30,
		Overbought: 70,
		Midpoint:   50,
	}
}

// Oscillator is the oscillator-based strategy variant.
type Oscillator struct {
	config OscillatorConfig
}

// NewOscillator creates an oscillator strategy.
func NewOscillator(config OscillatorConfig) *Oscillator {
	if config.Period <= 0 {
		config.Period = 14
	}
	if config.Midpoint <= 0 {
		config.Midpoint = 50
	}
	return &Oscillator{config: config}
}

func (s *Oscillator) Name() string { return "oscillator" }

// Decide resolves tick events from the oscillator value and its previous
// value, both recomputed from the snapshot's price history alone. Discovery
// events yield nothing: this variant needs history before it acts.
func (s *Oscillator) Decide(_ context.Context, event Event, rt Runtime) *TradeIntent {
	if event.Type != EventTick || event.Tick == nil {
		return nil
	}
	snap := event.Tick
	if len(snap.Prices) < 2 {
		return nil
	}

	cur, okCur := rsi(snap.Prices, s.config.Period)
	prev, okPrev := rsi(snap.Prices[:len(snap.Prices)-1], s.config.Period)
	if !okCur || !okPrev {
		return nil
	}

	if !snap.Held {
		// Entry: oscillator crosses below the oversold threshold.
		if prev >= s.config.Oversold && cur < s.config.Oversold {
			if rt.OpenPositions() >= rt.MaxPositions() {
				log.Debug().Str("mint", string(snap.Mint)).Msg("oscillator: oversold but at capacity")
				return nil
			}
			return &TradeIntent{
				Mint:     snap.Mint,
				Action:   ActionBuy,
				Reason:   fmt.Sprintf("oscillator %.1f crossed below oversold %.0f", cur, s.config.Oversold),
				Strategy: s.Name(),
			}
		}
		return nil
	}

	// Exit signals, checked strongest first.
	switch {
	case prev <= s.config.Overbought && cur > s.config.Overbought:
		return &TradeIntent{
			Mint:     snap.Mint,
			Action:   ActionSell,
			Reason:   fmt.Sprintf("oscillator %.1f crossed above overbought %.0f", cur, s.config.Overbought),
			Strategy: s.Name(),
		}
	case bearishDivergence(snap.Prices, prev, cur):
		return &TradeIntent{
			Mint:     snap.Mint,
			Action:   ActionSell,
			Reason:   "bearish divergence: price rising while oscillator falling",
			Strategy: s.Name(),
		}
	case prev < s.config.Midpoint && cur >= s.config.Midpoint:
		return &TradeIntent{
			Mint:     snap.Mint,
			Action:   ActionSell,
			Reason:   fmt.Sprintf("oscillator recovered through midpoint %.0f", s.config.Midpoint),
			Strategy: s.Name(),
		}
	}
	return nil
}

// bearishDivergence reports price making a higher high while the oscillator
// weakens.
func bearishDivergence(prices []float64, prevOsc, curOsc float64) bool {
	n := len(prices)
	if n < 2 {
		return false
	}
	return prices[n-1] > prices[n-2] && curOsc < prevOsc
}

// rsi returns the Wilder-smoothed Relative Strength Index of the final
// sample, or ok=false when the series is shorter than period+1.
func rsi(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
