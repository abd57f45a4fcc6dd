package position

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// Contract violations. Callers log these and treat the offending operation
// as a no-op; they are never fatal.
var (
	ErrAlreadyHeld = errors.New("position: already held")
	ErrNotFound    = errors.New("position: not found")
)

// Position is one held token. Owned exclusively by the Book; callers always
// receive value copies, so a snapshot can be inspected without racing the
// single writer.
type Position struct {
	ID            string          `json:"id"`
	Mint          solana.Pubkey   `json:"mint"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	NotionalSOL   decimal.Decimal `json:"notional_sol"`
	AmountToken   decimal.Decimal `json:"amount_token"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PeakPrice     decimal.Decimal `json:"peak_price"`
	PnLPct        float64         `json:"pnl_pct"`    // currentPrice/entryPrice - 1, in percent
	Volatility    float64         `json:"volatility"` // population stddev of returns over history
	TrailingArmed bool            `json:"trailing_armed"`
	OpenedAt      time.Time       `json:"opened_at"`

	// History is the retained price window, oldest first. The first element
	// is the entry price until retention evicts it.
	History []float64 `json:"-"`
}

// Age returns how long the position has been open.
func (p Position) Age() time.Duration {
	return time.Since(p.OpenedAt)
}

// held is the internal mutable record behind a Position snapshot.
type held struct {
	pos     Position
	history []float64 // ring buffer, fixed capacity
	head    int
	count   int
}

// Book owns the map of open positions keyed by mint. It is the only globally
// shared mutable structure in the core and is safe for concurrent use.
type Book struct {
	mu         sync.RWMutex
	maxHistory int
	positions  map[solana.Pubkey]*held
}

// NewBook creates a position book retaining up to maxHistory prices per
// position.
func NewBook(maxHistory int) *Book {
	if maxHistory <= 0 {
		maxHistory = 200
	}
	return &Book{
		maxHistory: maxHistory,
		positions:  make(map[solana.Pubkey]*held),
	}
}

// Open creates a new position. Fails with ErrAlreadyHeld if a live position
// exists for the mint. A removed mint gets a brand-new Position on re-entry,
// never a reused one.
func (b *Book) Open(mint solana.Pubkey, entryPrice, notionalSOL, amountToken decimal.Decimal) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[mint]; exists {
		return Position{}, ErrAlreadyHeld
	}

	h := &held{
		pos: Position{
			ID:           uuid.New().String()[:12],
			Mint:         mint,
			EntryPrice:   entryPrice,
			NotionalSOL:  notionalSOL,
			AmountToken:  amountToken,
			CurrentPrice: entryPrice,
			PeakPrice:    entryPrice,
			OpenedAt:     time.Now(),
		},
		history: make([]float64, b.maxHistory),
	}
	h.push(entryPrice.InexactFloat64())
	b.positions[mint] = h

	log.Info().
		Str("pos_id", h.pos.ID).
		Str("mint", string(mint)).
		Str("entry_price", entryPrice.String()).
		Str("notional_sol", notionalSOL.String()).
		Msg("book: position opened")

	return h.snapshot(), nil
}

// Update records a new observed price. Fails with ErrNotFound if the mint is
// not held. PeakPrice never decreases; PnL is recomputed from the latest
// price only.
func (b *Book) Update(mint solana.Pubkey, price decimal.Decimal) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.positions[mint]
	if !ok {
		return Position{}, ErrNotFound
	}

	h.pos.CurrentPrice = price
	if price.GreaterThan(h.pos.PeakPrice) {
		h.pos.PeakPrice = price
	}
	h.push(price.InexactFloat64())

	if h.pos.EntryPrice.IsPositive() {
		pnl, _ := price.Sub(h.pos.EntryPrice).Div(h.pos.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
		h.pos.PnLPct = pnl
	}
	h.pos.Volatility = returnStddev(h.ordered())

	return h.snapshot(), nil
}

// ArmTrailingStop marks the trailing stop as armed. Arming is one-way.
func (b *Book) ArmTrailingStop(mint solana.Pubkey) (Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.positions[mint]
	if !ok {
		return Position{}, ErrNotFound
	}
	h.pos.TrailingArmed = true
	return h.snapshot(), nil
}

// Remove deletes a position, returning it and true, or false if absent.
// Idempotent: removing an absent mint is not an error.
func (b *Book) Remove(mint solana.Pubkey) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.positions[mint]
	if !ok {
		return Position{}, false
	}
	delete(b.positions, mint)

	log.Info().
		Str("pos_id", h.pos.ID).
		Str("mint", string(mint)).
		Float64("pnl_pct", h.pos.PnLPct).
		Msg("book: position removed")

	return h.snapshot(), true
}

// Get returns a snapshot of the position for a mint.
func (b *Book) Get(mint solana.Pubkey) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.positions[mint]
	if !ok {
		return Position{}, false
	}
	return h.snapshot(), true
}

// Held reports whether a live position exists for the mint.
func (b *Book) Held(mint solana.Pubkey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[mint]
	return ok
}

// Count returns the number of open positions.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// Mints returns the mints of all open positions.
func (b *Book) Mints() []solana.Pubkey {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mints := make([]solana.Pubkey, 0, len(b.positions))
	for m := range b.positions {
		mints = append(mints, m)
	}
	return mints
}

// --- ring buffer ---

func (h *held) push(price float64) {
	h.history[h.head] = price
	h.head = (h.head + 1) % len(h.history)
	if h.count < len(h.history) {
		h.count++
	}
}

// ordered returns the retained prices oldest-first.
func (h *held) ordered() []float64 {
	out := make([]float64, h.count)
	start := h.head - h.count
	for i := 0; i < h.count; i++ {
		out[i] = h.history[(start+i+len(h.history))%len(h.history)]
	}
	return out
}

func (h *held) snapshot() Position {
	p := h.pos
	p.History = h.ordered()
	return p
}

// returnStddev computes the population standard deviation of simple returns
// over the price series.
func returnStddev(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}
