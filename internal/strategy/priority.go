package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Priority strategy — whitelist/source driven opportunistic entries.
// ---------------------------------------------------------------------------

// PriorityConfig holds the priority strategy parameters.
type PriorityConfig struct {
	// PreferredSource marks a discovery source whose tokens are bought even
	// off-whitelist.
	PreferredSource string `yaml:"preferred_source"`

	// RequireWhitelist restricts entries to whitelisted mints (the
	// preferred source exemption still applies).
	RequireWhitelist bool `yaml:"require_whitelist"`
}

// DefaultPriorityConfig returns whitelist-only defaults.
func DefaultPriorityConfig() PriorityConfig {
	return PriorityConfig{
		PreferredSource:  "pumpfun",
		RequireWhitelist: true,
	}
}

// Priority buys opportunistically on discovery, subject to capacity and
// whitelist membership, and never sells: exits are left entirely to the
// shared protective layers.
type Priority struct {
	config PriorityConfig
}

// NewPriority creates a priority/whitelist strategy.
func NewPriority(config PriorityConfig) *Priority {
	return &Priority{config: config}
}

func (s *Priority) Name() string { return "priority" }

func (s *Priority) Decide(_ context.Context, event Event, rt Runtime) *TradeIntent {
	if event.Type != EventDiscovery || event.Meta == nil {
		return nil
	}
	meta := *event.Meta

	if !rt.ValidateToken(meta) {
		log.Debug().Str("mint", string(meta.Mint)).Msg("priority: token failed validation gate")
		return nil
	}
	if rt.IsHeld(meta.Mint) {
		return nil
	}
	if rt.OpenPositions() >= rt.MaxPositions() {
		log.Debug().
			Int("open", rt.OpenPositions()).
			Int("max", rt.MaxPositions()).
			Msg("priority: at capacity, skipping")
		return nil
	}

	preferred := s.config.PreferredSource != "" && meta.Source == s.config.PreferredSource
	if !preferred && s.config.RequireWhitelist && !rt.IsWhitelisted(meta.Mint) {
		return nil
	}

	reason := fmt.Sprintf("whitelisted token from %s", meta.Source)
	if preferred {
		reason = fmt.Sprintf("preferred source %s", meta.Source)
	}
	return &TradeIntent{
		Mint:     meta.Mint,
		Action:   ActionBuy,
		Reason:   reason,
		Strategy: s.Name(),
	}
}
