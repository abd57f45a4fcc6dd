package exits

import (
	"fmt"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/position"
)

// Recommendation is the advisory output of a protective exit layer.
type Recommendation struct {
	ShouldExit bool   `json:"should_exit"`
	Reason     string `json:"reason"`
}

// TimePolicyConfig holds the hold-time limits. Policy constants, tunable per
// deployment.
type TimePolicyConfig struct {
	// MinHold: below this age the policy never recommends exit.
	MinHold time.Duration `yaml:"min_hold"`

	// MaxUnprofitableHold: past this age an unprofitable position is cut.
	MaxUnprofitableHold time.Duration `yaml:"max_unprofitable_hold"`
}

// DefaultTimePolicyConfig returns conservative defaults.
func DefaultTimePolicyConfig() TimePolicyConfig {
	return TimePolicyConfig{
		MinHold:             5 * time.Minute,
		MaxUnprofitableHold: time.Hour,
	}
}

// TimePolicy recommends exits for stale losers. Profitable positions are
// exempt no matter how old they are; taking profit belongs to the strategy
// and the trailing stop, not to this policy.
type TimePolicy struct {
	config TimePolicyConfig
}

// NewTimePolicy creates a time-based exit policy.
func NewTimePolicy(config TimePolicyConfig) *TimePolicy {
	if config.MinHold <= 0 {
		config.MinHold = 5 * time.Minute
	}
	if config.MaxUnprofitableHold <= 0 {
		config.MaxUnprofitableHold = time.Hour
	}
	return &TimePolicy{config: config}
}

// AnalyzeTimeBasedExit evaluates the position's age against profitability.
func (p *TimePolicy) AnalyzeTimeBasedExit(pos position.Position) Recommendation {
	age := pos.Age()

	if age < p.config.MinHold {
		return Recommendation{Reason: "No time-based exit needed"}
	}

	if age > p.config.MaxUnprofitableHold && pos.PnLPct < 0 {
		return Recommendation{
			ShouldExit: true,
			Reason: fmt.Sprintf("held %s and still unprofitable (%.2f%%)",
				age.Round(time.Minute), pos.PnLPct),
		}
	}

	return Recommendation{Reason: "No time-based exit needed"}
}
