package strategy

import (
	"context"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Strategy Engine — pluggable decision unit turning discovery/tick events
// into trade intents. New variants plug in without orchestrator changes.
// ---------------------------------------------------------------------------

// Action is the direction of a trade intent.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// TradeIntent is a zero-or-one-per-invocation decision. Forced intents come
// from protective layers and bypass strategy discretion.
type TradeIntent struct {
	Mint     solana.Pubkey `json:"mint"`
	Action   Action        `json:"action"`
	Forced   bool          `json:"forced"`
	Reason   string        `json:"reason"`
	Strategy string        `json:"strategy"`
}

// EventType discriminates strategy events.
type EventType string

const (
	EventDiscovery EventType = "discovery"
	EventTick      EventType = "tick"
)

// TickSnapshot is the per-token view handed to a strategy on a tick. It is
// everything a decision may depend on; strategies keep no per-token state of
// their own, so the same snapshot always yields the same intent.
type TickSnapshot struct {
	Mint   solana.Pubkey `json:"mint"`
	Price  float64       `json:"price"`
	Volume float64       `json:"volume"`
	Held   bool          `json:"held"`
	// Prices is the retained history oldest-first, including Price.
	Prices []float64 `json:"prices"`
}

// Event wraps the two kinds of input a strategy can receive.
type Event struct {
	Type EventType            `json:"type"`
	Meta *discovery.TokenMeta `json:"meta,omitempty"`
	Tick *TickSnapshot        `json:"tick,omitempty"`
}

// Runtime is the read-only capability a strategy decides against. The
// orchestrator implements it over the position book and whitelist; tests
// substitute a stub.
type Runtime interface {
	// IsHeld reports whether a live position exists for the mint.
	IsHeld(mint solana.Pubkey) bool

	// OpenPositions returns the number of live positions.
	OpenPositions() int

	// MaxPositions returns the concurrent position capacity.
	MaxPositions() int

	// IsWhitelisted reports whitelist membership.
	IsWhitelisted(mint solana.Pubkey) bool

	// ValidateToken is the freshness/basic validation gate applied before
	// entering a discovered token.
	ValidateToken(meta discovery.TokenMeta) bool
}

// Strategy is the interface all variants implement.
//
// Rules:
// - A strategy never executes trades itself; it returns an intent.
// - A strategy is deterministic: same event + runtime view, same intent.
type Strategy interface {
	// Name returns the variant name.
	Name() string

	// Decide resolves an event to zero or one trade intent.
	Decide(ctx context.Context, event Event, rt Runtime) *TradeIntent
}

// ---------------------------------------------------------------------------
// Stub runtime (testing)
// ---------------------------------------------------------------------------

// StubRuntime is a fixed-answer Runtime for deterministic strategy tests.
type StubRuntime struct {
	Held      map[solana.Pubkey]bool
	Whitelist map[solana.Pubkey]bool
	Open      int
	Max       int
	MaxAge    time.Duration
}

// NewStubRuntime creates a permissive stub runtime with capacity 5.
func NewStubRuntime() *StubRuntime {
	return &StubRuntime{
		Held:      make(map[solana.Pubkey]bool),
		Whitelist: make(map[solana.Pubkey]bool),
		Max:       5,
		MaxAge:    10 * time.Minute,
	}
}

func (r *StubRuntime) IsHeld(mint solana.Pubkey) bool        { return r.Held[mint] }
func (r *StubRuntime) OpenPositions() int                    { return r.Open }
func (r *StubRuntime) MaxPositions() int                     { return r.Max }
func (r *StubRuntime) IsWhitelisted(mint solana.Pubkey) bool { return r.Whitelist[mint] }

func (r *StubRuntime) ValidateToken(meta discovery.TokenMeta) bool {
	return meta.Mint != "" && meta.Age() <= r.MaxAge
}
