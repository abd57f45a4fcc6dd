package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Market Data Port — balance, holdings, quotes and price/volume ticks.
// Abstracts the chain RPC and the swap aggregator behind one capability.
// ---------------------------------------------------------------------------

// Tick is a single price/volume observation for a mint.
type Tick struct {
	Mint      solana.Pubkey   `json:"mint"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
	Ts        time.Time       `json:"ts"`
}

// Valid reports whether the tick is usable for evaluation. Malformed ticks
// skip the cycle for that token only; they never abort the scheduler.
func (t Tick) Valid() bool {
	return t.Mint != "" && t.PriceUSD.IsPositive()
}

// Port is the market data capability consumed by the orchestrator and the
// execution gateway. Implementations wrap the chain RPC and the swap-quote
// service; the Stub below is the in-memory implementation used for tests
// and -stub runs.
type Port interface {
	// Balance returns the quote-currency (SOL) balance of a wallet.
	Balance(ctx context.Context, wallet solana.Pubkey) (decimal.Decimal, error)

	// Holdings returns token balances held by a wallet, keyed by mint.
	Holdings(ctx context.Context, wallet solana.Pubkey) (map[solana.Pubkey]decimal.Decimal, error)

	// Quote fetches a fresh swap quote for the pair and amount.
	Quote(ctx context.Context, input, output solana.Pubkey, amount decimal.Decimal) (solana.Quote, error)

	// TickFor returns the latest price/volume observation for a mint.
	TickFor(ctx context.Context, mint solana.Pubkey) (Tick, error)
}

// ---------------------------------------------------------------------------
// Stub port
// ---------------------------------------------------------------------------

// Stub is a scriptable in-memory Port. Ticks are consumed in order per mint,
// repeating the last one once the script runs out, so a test can drive a
// token through a full price path.
type Stub struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	holdings map[solana.Pubkey]decimal.Decimal
	ticks    map[solana.Pubkey][]Tick
	cursor   map[solana.Pubkey]int
	failNext bool
	quoteSeq int
}

// NewStub creates a stub port with a 10 SOL balance.
func NewStub() *Stub {
	return &Stub{
		balance:  decimal.NewFromInt(10),
		holdings: make(map[solana.Pubkey]decimal.Decimal),
		ticks:    make(map[solana.Pubkey][]Tick),
		cursor:   make(map[solana.Pubkey]int),
	}
}

// SetBalance sets the stub wallet balance.
func (s *Stub) SetBalance(bal decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = bal
}

// PushTicks appends scripted ticks for a mint.
func (s *Stub) PushTicks(mint solana.Pubkey, ticks ...Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks[mint] = append(s.ticks[mint], ticks...)
}

// PushPrices is a shorthand that scripts price-only ticks for a mint.
func (s *Stub) PushPrices(mint solana.Pubkey, prices ...float64) {
	for _, p := range prices {
		s.PushTicks(mint, Tick{
			Mint:      mint,
			PriceUSD:  decimal.NewFromFloat(p),
			VolumeUSD: decimal.NewFromInt(1000),
			Ts:        time.Now(),
		})
	}
}

// SetFailNext makes the next call fail.
func (s *Stub) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *Stub) shouldFail() bool {
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

func (s *Stub) Balance(_ context.Context, _ solana.Pubkey) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail() {
		return decimal.Zero, fmt.Errorf("stub: simulated RPC failure")
	}
	return s.balance, nil
}

func (s *Stub) Holdings(_ context.Context, _ solana.Pubkey) (map[solana.Pubkey]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	out := make(map[solana.Pubkey]decimal.Decimal, len(s.holdings))
	for k, v := range s.holdings {
		out[k] = v
	}
	return out, nil
}

func (s *Stub) Quote(_ context.Context, input, output solana.Pubkey, amount decimal.Decimal) (solana.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail() {
		return solana.Quote{}, fmt.Errorf("stub: simulated quote failure")
	}

	// Price the non-SOL side of the pair from its latest scripted tick.
	mint := output
	if mint == solana.SOLMint {
		mint = input
	}
	price := decimal.NewFromFloat(1)
	if t, ok := s.latestTick(mint); ok {
		price = t.PriceUSD
	}

	s.quoteSeq++
	return solana.Quote{
		InputMint:  input,
		OutputMint: output,
		AmountIn:   amount,
		AmountOut:  amount.Div(price),
		PriceUSD:   price,
		UnsignedTx: fmt.Sprintf("stub-tx-%d", s.quoteSeq),
		ExpiresAt:  time.Now().Add(30 * time.Second),
	}, nil
}

func (s *Stub) TickFor(_ context.Context, mint solana.Pubkey) (Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail() {
		return Tick{}, fmt.Errorf("stub: simulated RPC failure")
	}

	script := s.ticks[mint]
	if len(script) == 0 {
		return Tick{}, fmt.Errorf("stub: no ticks scripted for %s", mint)
	}

	i := s.cursor[mint]
	if i >= len(script) {
		i = len(script) - 1
	} else {
		s.cursor[mint] = i + 1
	}
	return script[i], nil
}

// latestTick returns the last scripted or consumed tick without advancing.
func (s *Stub) latestTick(mint solana.Pubkey) (Tick, bool) {
	script := s.ticks[mint]
	if len(script) == 0 {
		return Tick{}, false
	}
	i := s.cursor[mint]
	if i > 0 {
		i--
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], true
}
