package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/execution"
	"github.com/DoktorBog/Bswap-sub004/internal/exits"
	"github.com/DoktorBog/Bswap-sub004/internal/marketdata"
	"github.com/DoktorBog/Bswap-sub004/internal/observability"
	"github.com/DoktorBog/Bswap-sub004/internal/position"
	"github.com/DoktorBog/Bswap-sub004/internal/rug"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
	"github.com/DoktorBog/Bswap-sub004/internal/strategy"
	"github.com/DoktorBog/Bswap-sub004/internal/trend"
	"github.com/DoktorBog/Bswap-sub004/internal/wallet"
)

const mint = solana.Pubkey("BotMint1111111111111111111111111111111111111")

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

type fixture struct {
	port    *marketdata.Stub
	feed    *discovery.StubFeed
	book    *position.Book
	signer  *wallet.StubSigner
	metrics *observability.BotMetrics
	orch    *Orchestrator
}

func newFixture(strat strategy.Strategy, dryRun bool) *fixture {
	stub := marketdata.NewStub()
	return newFixtureWithPort(strat, dryRun, stub, stub)
}

// newFixtureWithPort lets a test interpose on the market data port while
// keeping the stub's scripting surface.
func newFixtureWithPort(strat strategy.Strategy, dryRun bool, port marketdata.Port, stub *marketdata.Stub) *fixture {
	f := &fixture{
		port:    stub,
		feed:    discovery.NewStubFeed(),
		book:    position.NewBook(50),
		signer:  wallet.NewStubSigner(),
		metrics: observability.NewBotMetrics(),
	}

	cfg := Config{
		IntervalMs:         60_000,
		Workers:            4,
		MaxPositions:       2,
		BuyNotionalSOL:     1,
		MaxTokenAge:        10 * time.Minute,
		CleanupEveryCycles: 100,
	}
	gw := execution.NewGateway(
		execution.Config{MaxAttempts: 3, RetryDelayMs: 1, DryRun: dryRun},
		port, f.signer,
	)
	f.orch = New(cfg, port, f.feed, f.book,
		rug.NewDetector(rug.DefaultConfig()),
		trend.NewFilter(trend.DefaultConfig()),
		exits.NewTimePolicy(exits.DefaultTimePolicyConfig()),
		exits.NewTrailingStop(exits.DefaultTrailingConfig()),
		strat, gw, f.metrics)
	return f
}

func priorityStrategy() strategy.Strategy {
	return strategy.NewPriority(strategy.DefaultPriorityConfig())
}

// buyWhen enters any unheld token once its price history is long enough.
// Used to drive tick-path entries deterministically.
type buyWhen struct{ minHistory int }

func (b buyWhen) Name() string { return "test-buy" }

func (b buyWhen) Decide(_ context.Context, ev strategy.Event, _ strategy.Runtime) *strategy.TradeIntent {
	if ev.Type != strategy.EventTick || ev.Tick == nil || ev.Tick.Held {
		return nil
	}
	if len(ev.Tick.Prices) < b.minHistory {
		return nil
	}
	return &strategy.TradeIntent{
		Mint:     ev.Tick.Mint,
		Action:   strategy.ActionBuy,
		Reason:   "scripted entry",
		Strategy: b.Name(),
	}
}

func TestDiscoveryBuyLifecycle(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	f.port.PushPrices(mint, 1.0, 1.1)

	f.orch.Cycle(context.Background())

	assert.True(t, f.book.Held(mint))
	state, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, StateHeld, state)
	assert.EqualValues(t, 1, f.metrics.Discovered.Value())
	assert.EqualValues(t, 1, f.metrics.Buys.Value())
}

func TestRugPullForcesExit(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	_, err := f.book.Open(mint, d(1.0), d(1), d(100))
	require.NoError(t, err)
	f.port.PushPrices(mint, 1.0, 0.4)

	f.orch.Cycle(context.Background())
	require.True(t, f.book.Held(mint), "calm tick keeps the position")

	f.orch.Cycle(context.Background())
	assert.False(t, f.book.Held(mint))
	state, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, StateDisposed, state)
	assert.EqualValues(t, 1, f.metrics.ForcedExits.Value())
	assert.EqualValues(t, 1, f.metrics.Sells.Value())
}

func TestTrailingStopArmsAndFires(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	_, err := f.book.Open(mint, d(1.0), d(1), d(100))
	require.NoError(t, err)
	f.port.PushPrices(mint, 1.3, 1.05)

	// +30% arms the stop; the stop holds while price stays near the peak.
	f.orch.Cycle(context.Background())
	pos, ok := f.book.Get(mint)
	require.True(t, ok)
	assert.True(t, pos.TrailingArmed)

	// Drawdown past 15% from peak 1.3 fires while still above entry.
	f.orch.Cycle(context.Background())
	assert.False(t, f.book.Held(mint))
	assert.EqualValues(t, 1, f.metrics.ForcedExits.Value())
}

func TestFailedSellLeavesPositionHeld(t *testing.T) {
	f := newFixture(priorityStrategy(), false)
	_, err := f.book.Open(mint, d(1.0), d(1), d(100))
	require.NoError(t, err)
	f.port.PushPrices(mint, 1.0, 0.4)

	f.orch.Cycle(context.Background())
	f.signer.FailNext(1, errors.New("rpc node down"))
	f.orch.Cycle(context.Background())

	assert.True(t, f.book.Held(mint), "failed swap must not mutate lifecycle")
	assert.EqualValues(t, 1, f.metrics.FailedTrades.Value())
	assert.Zero(t, f.metrics.Sells.Value())

	_, disposed := f.orch.Lifecycle(mint)
	assert.False(t, disposed)
}

func TestTickEntryOnTrendingMarket(t *testing.T) {
	f := newFixture(buyWhen{minHistory: 3}, true)
	f.orch.AddToWhitelist(mint)
	f.port.PushPrices(mint, 1.0, 2.0, 3.0)

	for i := 0; i < 3; i++ {
		f.orch.Cycle(context.Background())
	}

	assert.True(t, f.book.Held(mint))
	assert.EqualValues(t, 1, f.metrics.Buys.Value())
}

func TestChoppyMarketBlocksEntry(t *testing.T) {
	f := newFixture(buyWhen{minHistory: 5}, true)
	f.orch.AddToWhitelist(mint)
	f.port.PushPrices(mint, 1.0, 2.0, 1.0, 2.0, 1.0)

	for i := 0; i < 5; i++ {
		f.orch.Cycle(context.Background())
	}

	assert.False(t, f.book.Held(mint))
	assert.Zero(t, f.metrics.Buys.Value())
}

func TestMaxPositionsBoundsEntries(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.orch.config.MaxPositions = 1

	a, b := solana.Pubkey("MintA"), solana.Pubkey("MintB")
	f.feed.Emit(
		discovery.TokenMeta{Mint: a, Source: "pumpfun", DiscoveredAt: time.Now()},
		discovery.TokenMeta{Mint: b, Source: "pumpfun", DiscoveredAt: time.Now()},
	)
	f.port.PushPrices(a, 1.0)
	f.port.PushPrices(b, 1.0)

	f.orch.Cycle(context.Background())

	assert.Equal(t, 1, f.book.Count())
}

func TestBadTickSkipsTokenOnly(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.orch.AddToWhitelist(mint)

	other := solana.Pubkey("HealthyMint")
	_, err := f.book.Open(other, d(1.0), d(1), d(100))
	require.NoError(t, err)
	f.port.PushPrices(other, 1.1)

	// No ticks scripted for the whitelisted mint: its evaluation is skipped,
	// the healthy token still updates.
	f.orch.Cycle(context.Background())

	assert.GreaterOrEqual(t, f.metrics.SkippedTicks.Value(), int64(1))
	pos, ok := f.book.Get(other)
	require.True(t, ok)
	assert.InDelta(t, 10.0, pos.PnLPct, 1e-9)
}

func TestDiscoveryFailureSkipsDiscoveryOnly(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.feed.SetFailNext()
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	f.port.PushPrices(mint, 1.0)

	f.orch.Cycle(context.Background())
	assert.Zero(t, f.metrics.Discovered.Value())

	// Next cycle the feed recovers.
	f.orch.Cycle(context.Background())
	assert.EqualValues(t, 1, f.metrics.Discovered.Value())
	assert.True(t, f.book.Held(mint))
}

func TestWhitelistRoundTrip(t *testing.T) {
	f := newFixture(priorityStrategy(), true)

	f.orch.AddToWhitelist(mint)
	assert.True(t, f.orch.IsWhitelisted(mint))
	assert.Contains(t, f.orch.Whitelist(), mint)

	f.orch.RemoveFromWhitelist(mint)
	assert.False(t, f.orch.IsWhitelisted(mint))
	assert.Empty(t, f.orch.Whitelist())
}

func TestValidateTokenFreshnessGate(t *testing.T) {
	f := newFixture(priorityStrategy(), true)

	fresh := discovery.TokenMeta{Mint: mint, DiscoveredAt: time.Now()}
	stale := discovery.TokenMeta{Mint: mint, DiscoveredAt: time.Now().Add(-time.Hour)}
	empty := discovery.TokenMeta{DiscoveredAt: time.Now()}

	assert.True(t, f.orch.ValidateToken(fresh))
	assert.False(t, f.orch.ValidateToken(stale))
	assert.False(t, f.orch.ValidateToken(empty))
}

func TestStartStop(t *testing.T) {
	f := newFixture(priorityStrategy(), true)

	require.NoError(t, f.orch.Start())
	assert.True(t, f.orch.Running())
	assert.Error(t, f.orch.Start(), "double start is rejected")

	f.orch.Stop()
	assert.False(t, f.orch.Running())
	f.orch.Stop() // idempotent
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	f.port.PushPrices(mint, 1.0)

	f.orch.Cycle(context.Background())

	st := f.orch.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.OpenPositions)
	assert.EqualValues(t, 1, st.Buys)
	assert.Equal(t, "priority", st.Strategy)
	assert.Equal(t, 10.0, st.BalanceSOL)
	assert.Equal(t, 1, st.ActiveTokens)
}

func TestDisposedTokensLeaveTheUniverse(t *testing.T) {
	f := newFixture(priorityStrategy(), true)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	f.port.PushPrices(mint, 1.0, 1.0, 0.4)

	f.orch.Cycle(context.Background()) // buy at 1.0
	f.orch.Cycle(context.Background()) // calm tick
	f.orch.Cycle(context.Background()) // crash, forced exit

	require.False(t, f.book.Held(mint))
	assert.Zero(t, f.orch.Status().ActiveTokens)

	// Further cycles do nothing for a disposed token.
	skipped := f.metrics.SkippedTicks.Value()
	f.orch.Cycle(context.Background())
	assert.Equal(t, skipped, f.metrics.SkippedTicks.Value())
	assert.False(t, f.book.Held(mint))
}

// zeroQuotePort strips the USD price from quotes, the shape a venue returns
// when it cannot value a route.
type zeroQuotePort struct{ *marketdata.Stub }

func (p zeroQuotePort) Quote(ctx context.Context, input, output solana.Pubkey, amount decimal.Decimal) (solana.Quote, error) {
	q, err := p.Stub.Quote(ctx, input, output, amount)
	q.PriceUSD = decimal.Zero
	return q, err
}

func TestDiscoveryBuyFallsBackToTickPrice(t *testing.T) {
	stub := marketdata.NewStub()
	f := newFixtureWithPort(priorityStrategy(), true, zeroQuotePort{stub}, stub)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	stub.PushPrices(mint, 1.25, 1.25)

	f.orch.Cycle(context.Background())

	require.True(t, f.book.Held(mint))
	pos, ok := f.book.Get(mint)
	require.True(t, ok)
	require.True(t, pos.EntryPrice.IsPositive(), "entry must never be zero")
	assert.True(t, pos.EntryPrice.Equal(d(1.25)), "entry %s", pos.EntryPrice)
}

func TestUnpricedBuyIsNotTracked(t *testing.T) {
	stub := marketdata.NewStub()
	f := newFixtureWithPort(priorityStrategy(), true, zeroQuotePort{stub}, stub)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	// No ticks scripted: neither the quote nor the market can price the mint.

	f.orch.Cycle(context.Background())

	assert.False(t, f.book.Held(mint))
	assert.EqualValues(t, 1, f.metrics.FailedTrades.Value())
	state, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, StateDiscovered, state)
}

func TestStaleDiscoveredTokensAgeOut(t *testing.T) {
	f := newFixture(buyWhen{minHistory: 99}, true)
	f.orch.config.MaxTokenAge = 20 * time.Millisecond
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	f.port.PushPrices(mint, 1.0)

	f.orch.Cycle(context.Background())
	_, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, 1, f.orch.Status().ActiveTokens)

	time.Sleep(30 * time.Millisecond)
	f.orch.Cycle(context.Background())

	_, ok = f.orch.Lifecycle(mint)
	assert.False(t, ok, "stale discovered token must be forgotten")
	assert.Zero(t, f.orch.Status().ActiveTokens)
}

func TestOscillatorRoundTripDisposesPosition(t *testing.T) {
	strat := strategy.NewOscillator(strategy.OscillatorConfig{
		Period: 3, Oversold: 30, Overbought: 70, Midpoint: 50,
	})
	f := newFixture(strat, true)
	f.feed.Emit(discovery.TokenMeta{Mint: mint, Source: "pumpfun", DiscoveredAt: time.Now()})
	// Capitulation into the 5th tick crosses oversold; the recovery leg
	// lifts the oscillator back through the midpoint.
	f.port.PushPrices(mint, 10, 11, 10.5, 10.4, 3.0, 2.7, 2.85, 2.88, 3.06)

	for i := 0; i < 5; i++ {
		f.orch.Cycle(context.Background())
	}
	require.True(t, f.book.Held(mint), "oversold cross should enter")
	assert.EqualValues(t, 1, f.metrics.Buys.Value())

	for i := 0; i < 4; i++ {
		f.orch.Cycle(context.Background())
	}
	assert.False(t, f.book.Held(mint))
	state, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, StateDisposed, state)
	assert.EqualValues(t, 1, f.metrics.Sells.Value())
	assert.Zero(t, f.metrics.ForcedExits.Value(), "strategy exit is not forced")
}

func TestWhitelistedTokenReentersAfterDisposal(t *testing.T) {
	f := newFixture(buyWhen{minHistory: 1}, true)
	f.orch.AddToWhitelist(mint)
	f.port.PushPrices(mint, 1.0, 0.4, 0.4)

	f.orch.Cycle(context.Background()) // enter at 1.0
	require.True(t, f.book.Held(mint))

	f.orch.Cycle(context.Background()) // crash, rug exit
	require.False(t, f.book.Held(mint))
	state, ok := f.orch.Lifecycle(mint)
	require.True(t, ok)
	require.Equal(t, StateDisposed, state)

	f.orch.Cycle(context.Background()) // whitelisted mints stay in play
	assert.True(t, f.book.Held(mint))
	assert.EqualValues(t, 2, f.metrics.Buys.Value())
	state, ok = f.orch.Lifecycle(mint)
	require.True(t, ok)
	assert.Equal(t, StateHeld, state)
}
