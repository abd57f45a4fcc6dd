package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

const mint = solana.Pubkey("DataMint111111111111111111111111111111111111")

func TestTickValid(t *testing.T) {
	good := Tick{Mint: mint, PriceUSD: decimal.NewFromFloat(1.5), Ts: time.Now()}
	assert.True(t, good.Valid())

	assert.False(t, Tick{PriceUSD: decimal.NewFromFloat(1.5)}.Valid(), "missing mint")
	assert.False(t, Tick{Mint: mint}.Valid(), "zero price")
	assert.False(t, Tick{Mint: mint, PriceUSD: decimal.NewFromFloat(-1)}.Valid(), "negative price")
}

func TestStubTickScriptRepeatsLast(t *testing.T) {
	s := NewStub()
	s.PushPrices(mint, 1.0, 2.0)

	ctx := context.Background()
	first, err := s.TickFor(ctx, mint)
	require.NoError(t, err)
	assert.True(t, first.PriceUSD.Equal(decimal.NewFromFloat(1.0)))

	second, err := s.TickFor(ctx, mint)
	require.NoError(t, err)
	assert.True(t, second.PriceUSD.Equal(decimal.NewFromFloat(2.0)))

	// Script exhausted: the last tick repeats.
	third, err := s.TickFor(ctx, mint)
	require.NoError(t, err)
	assert.True(t, third.PriceUSD.Equal(decimal.NewFromFloat(2.0)))
}

func TestStubTickUnknownMint(t *testing.T) {
	s := NewStub()
	_, err := s.TickFor(context.Background(), mint)
	require.Error(t, err)
}

func TestStubQuotePricesFromLatestTick(t *testing.T) {
	s := NewStub()
	s.PushPrices(mint, 2.0)

	q, err := s.Quote(context.Background(), solana.SOLMint, mint, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, q.PriceUSD.Equal(decimal.NewFromFloat(2.0)))
	assert.True(t, q.AmountOut.Equal(decimal.NewFromInt(5)))
	assert.NotEmpty(t, q.UnsignedTx)
	assert.True(t, q.ExpiresAt.After(time.Now()))
}

func TestStubFailNextIsOneShot(t *testing.T) {
	s := NewStub()
	s.PushPrices(mint, 1.0)
	s.SetFailNext()

	_, err := s.TickFor(context.Background(), mint)
	require.Error(t, err)

	_, err = s.TickFor(context.Background(), mint)
	require.NoError(t, err)
}

func TestStreamPortPrefersFeedCache(t *testing.T) {
	inner := NewStub()
	inner.PushPrices(mint, 1.0)

	feed := NewWSFeed(DefaultWSFeedConfig())
	port := NewStreamPort(inner, feed)

	// Feed has not seen the mint: falls back to the inner port.
	tick, err := port.TickFor(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, tick.PriceUSD.Equal(decimal.NewFromFloat(1.0)))

	// Cache a stream tick and the feed answer wins.
	feed.handleMessage([]byte(`{"mint":"` + string(mint) + `","price_usd":"3.5","volume_usd":"900"}`))
	tick, err = port.TickFor(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, tick.PriceUSD.Equal(decimal.NewFromFloat(3.5)))
}

func TestWSFeedDropsBadMessages(t *testing.T) {
	feed := NewWSFeed(DefaultWSFeedConfig())

	feed.handleMessage([]byte(`not json`))
	feed.handleMessage([]byte(`{"mint":"","price_usd":"1"}`))
	feed.handleMessage([]byte(`{"mint":"` + string(mint) + `","price_usd":"0"}`))

	_, ok := feed.Latest(mint)
	assert.False(t, ok)
}
