package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

const prioMint = solana.Pubkey("PrioMint111111111111111111111111111111111111")

func discoveryEvent(mint solana.Pubkey, source string, age time.Duration) Event {
	return Event{
		Type: EventDiscovery,
		Meta: &discovery.TokenMeta{
			Mint:         mint,
			Source:       source,
			DiscoveredAt: time.Now().Add(-age),
		},
	}
}

func TestPriorityBuysPreferredSourceOffWhitelist(t *testing.T) {
	s := NewPriority(DefaultPriorityConfig())
	rt := NewStubRuntime()

	intent := s.Decide(context.Background(), discoveryEvent(prioMint, "pumpfun", time.Minute), rt)
	require.NotNil(t, intent)
	assert.Equal(t, ActionBuy, intent.Action)
	assert.Contains(t, intent.Reason, "preferred source")
}

func TestPriorityRequiresWhitelistForOtherSources(t *testing.T) {
	s := NewPriority(DefaultPriorityConfig())
	rt := NewStubRuntime()

	intent := s.Decide(context.Background(), discoveryEvent(prioMint, "raydium", time.Minute), rt)
	assert.Nil(t, intent)

	rt.Whitelist[prioMint] = true
	intent = s.Decide(context.Background(), discoveryEvent(prioMint, "raydium", time.Minute), rt)
	require.NotNil(t, intent)
	assert.Contains(t, intent.Reason, "whitelisted")
}

func TestPriorityRejectsStaleTokens(t *testing.T) {
	s := NewPriority(DefaultPriorityConfig())
	rt := NewStubRuntime()

	intent := s.Decide(context.Background(), discoveryEvent(prioMint, "pumpfun", time.Hour), rt)
	assert.Nil(t, intent)
}

func TestPrioritySkipsHeldAndFull(t *testing.T) {
	s := NewPriority(DefaultPriorityConfig())

	rt := NewStubRuntime()
	rt.Held[prioMint] = true
	assert.Nil(t, s.Decide(context.Background(), discoveryEvent(prioMint, "pumpfun", time.Minute), rt))

	rt = NewStubRuntime()
	rt.Open = rt.Max
	assert.Nil(t, s.Decide(context.Background(), discoveryEvent(prioMint, "pumpfun", time.Minute), rt))
}

func TestPriorityNeverSells(t *testing.T) {
	s := NewPriority(DefaultPriorityConfig())
	rt := NewStubRuntime()
	rt.Held[prioMint] = true

	ev := Event{
		Type: EventTick,
		Tick: &TickSnapshot{Mint: prioMint, Held: true, Prices: []float64{1, 0.5, 0.1}},
	}
	assert.Nil(t, s.Decide(context.Background(), ev, rt))
}

func TestPriorityWithoutWhitelistRequirement(t *testing.T) {
	s := NewPriority(PriorityConfig{PreferredSource: "", RequireWhitelist: false})
	rt := NewStubRuntime()

	intent := s.Decide(context.Background(), discoveryEvent(prioMint, "raydium", time.Minute), rt)
	require.NotNil(t, intent)
	assert.Equal(t, ActionBuy, intent.Action)
}
