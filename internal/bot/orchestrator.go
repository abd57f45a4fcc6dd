package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

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
)

// ---------------------------------------------------------------------------
// Orchestrator — the scheduling loop tying discovery, evaluation and
// execution together per token and across the token universe.
// ---------------------------------------------------------------------------

// LifecycleState tracks a token through the state machine
// Discovered -> Held -> Disposed.
type LifecycleState string

const (
	StateDiscovered LifecycleState = "DISCOVERED"
	StateHeld       LifecycleState = "HELD"
	StateDisposed   LifecycleState = "DISPOSED"
)

// lifecycleEntry records a token's state and when it entered it, so stale
// records can be aged out of the bookkeeping maps.
type lifecycleEntry struct {
	state LifecycleState
	at    time.Time
}

// Config configures the orchestrator.
type Config struct {
	// IntervalMs between scheduling cycles.
	IntervalMs int `yaml:"interval_ms"`

	// Workers bounds concurrent per-token evaluations.
	Workers int `yaml:"workers"`

	// MaxPositions is the concurrent position capacity.
	MaxPositions int `yaml:"max_positions"`

	// BuyNotionalSOL spent per entry.
	BuyNotionalSOL float64 `yaml:"buy_notional_sol"`

	// MaxTokenAge is the freshness gate for discovered tokens.
	MaxTokenAge time.Duration `yaml:"max_token_age"`

	// Wallet whose balance is reported in status.
	Wallet solana.Pubkey `yaml:"wallet"`

	// CleanupEveryCycles runs detector cleanup every N cycles.
	CleanupEveryCycles int `yaml:"cleanup_every_cycles"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		IntervalMs:         30_000,
		Workers:            8,
		MaxPositions:       5,
		BuyNotionalSOL:     0.1,
		MaxTokenAge:        10 * time.Minute,
		CleanupEveryCycles: 10,
	}
}

// watchWindow retains recent prices for a token that is not (yet) held, so
// the trend filter and strategies can see a series before entry.
const watchWindowCap = 50

// Orchestrator owns the start/stop lifecycle, the whitelist, and the
// per-token state machines. All mutation of a single token's state happens
// under that token's lock (single writer per mint); distinct tokens evaluate
// concurrently on a bounded worker pool.
type Orchestrator struct {
	config   Config
	port     marketdata.Port
	feed     discovery.Feed
	book     *position.Book
	rugDet   *rug.Detector
	trendFlt *trend.Filter
	timeExit *exits.TimePolicy
	trailing *exits.TrailingStop
	strat    strategy.Strategy
	gateway  *execution.Gateway
	metrics  *observability.BotMetrics

	mu        sync.Mutex // guards lifecycle, watch, locks
	lifecycle map[solana.Pubkey]lifecycleEntry
	watch     map[solana.Pubkey][]float64
	locks     map[solana.Pubkey]*sync.Mutex

	wlMu      sync.RWMutex
	whitelist map[solana.Pubkey]struct{}

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	cycles    atomic.Int64
}

// New creates an orchestrator.
func New(
	config Config,
	port marketdata.Port,
	feed discovery.Feed,
	book *position.Book,
	rugDet *rug.Detector,
	trendFlt *trend.Filter,
	timeExit *exits.TimePolicy,
	trailing *exits.TrailingStop,
	strat strategy.Strategy,
	gateway *execution.Gateway,
	metrics *observability.BotMetrics,
) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.IntervalMs <= 0 {
		config.IntervalMs = 30_000
	}
	if metrics == nil {
		metrics = observability.NewBotMetrics()
	}
	return &Orchestrator{
		config:    config,
		port:      port,
		feed:      feed,
		book:      book,
		rugDet:    rugDet,
		trendFlt:  trendFlt,
		timeExit:  timeExit,
		trailing:  trailing,
		strat:     strat,
		gateway:   gateway,
		metrics:   metrics,
		lifecycle: make(map[solana.Pubkey]lifecycleEntry),
		watch:     make(map[solana.Pubkey][]float64),
		locks:     make(map[solana.Pubkey]*sync.Mutex),
		whitelist: make(map[solana.Pubkey]struct{}),
	}
}

// Start launches the scheduling loop. Returns an error if already running.
func (o *Orchestrator) Start() error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("bot: already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.startedAt = time.Now()

	o.wg.Add(1)
	go o.run(ctx)

	log.Info().
		Int("interval_ms", o.config.IntervalMs).
		Int("workers", o.config.Workers).
		Int("max_positions", o.config.MaxPositions).
		Str("strategy", o.strat.Name()).
		Msg("bot: started")
	return nil
}

// Stop cancels the loop and waits for in-flight evaluations, letting any
// in-flight swap complete or fail naturally rather than aborting mid-submit.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	o.cancel()
	o.wg.Wait()
	log.Info().Msg("bot: stopped")
}

// Running reports whether the loop is active.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// AddToWhitelist adds a mint; it is picked up on the next cycle.
func (o *Orchestrator) AddToWhitelist(mint solana.Pubkey) {
	o.wlMu.Lock()
	o.whitelist[mint] = struct{}{}
	o.wlMu.Unlock()
	log.Info().Str("mint", string(mint)).Msg("bot: whitelisted")
}

// RemoveFromWhitelist removes a mint; in-flight cycles are unaffected.
func (o *Orchestrator) RemoveFromWhitelist(mint solana.Pubkey) {
	o.wlMu.Lock()
	delete(o.whitelist, mint)
	o.wlMu.Unlock()
	log.Info().Str("mint", string(mint)).Msg("bot: removed from whitelist")
}

// Whitelist returns the current whitelist.
func (o *Orchestrator) Whitelist() []solana.Pubkey {
	o.wlMu.RLock()
	defer o.wlMu.RUnlock()
	out := make([]solana.Pubkey, 0, len(o.whitelist))
	for m := range o.whitelist {
		out = append(out, m)
	}
	return out
}

// Status is the operational snapshot exposed to the control surface.
type Status struct {
	Running       bool    `json:"running"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveTokens  int     `json:"active_tokens"`
	OpenPositions int     `json:"open_positions"`
	Buys          int64   `json:"buys"`
	Sells         int64   `json:"sells"`
	ForcedExits   int64   `json:"forced_exits"`
	FailedTrades  int64   `json:"failed_trades"`
	BalanceSOL    float64 `json:"balance_sol"`
	Strategy      string  `json:"strategy"`
}

// Status returns the current operational snapshot.
func (o *Orchestrator) Status() Status {
	uptime := 0.0
	if o.running.Load() {
		uptime = time.Since(o.startedAt).Seconds()
	}
	return Status{
		Running:       o.running.Load(),
		UptimeSeconds: uptime,
		ActiveTokens:  len(o.monitored()),
		OpenPositions: o.book.Count(),
		Buys:          o.metrics.Buys.Value(),
		Sells:         o.metrics.Sells.Value(),
		ForcedExits:   o.metrics.ForcedExits.Value(),
		FailedTrades:  o.metrics.FailedTrades.Value(),
		BalanceSOL:    o.metrics.BalanceSOL.Value(),
		Strategy:      o.strat.Name(),
	}
}

// Lifecycle returns the recorded state for a mint.
func (o *Orchestrator) Lifecycle(mint solana.Pubkey) (LifecycleState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.lifecycle[mint]
	return e.state, ok
}

// --- strategy.Runtime ---

func (o *Orchestrator) IsHeld(mint solana.Pubkey) bool { return o.book.Held(mint) }
func (o *Orchestrator) OpenPositions() int             { return o.book.Count() }
func (o *Orchestrator) MaxPositions() int              { return o.config.MaxPositions }

func (o *Orchestrator) IsWhitelisted(mint solana.Pubkey) bool {
	o.wlMu.RLock()
	defer o.wlMu.RUnlock()
	_, ok := o.whitelist[mint]
	return ok
}

func (o *Orchestrator) ValidateToken(meta discovery.TokenMeta) bool {
	return meta.Mint != "" && meta.Age() <= o.config.MaxTokenAge
}

// --- scheduling loop ---

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(time.Duration(o.config.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	// First cycle immediately; then on the interval.
	o.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Cycle(ctx)
		}
	}
}

// Cycle runs one full scheduling pass: discovery, then independent
// per-token evaluation on the worker pool. Exported so tests (and the
// replay tooling) can step the bot deterministically.
func (o *Orchestrator) Cycle(ctx context.Context) {
	n := o.cycles.Add(1)

	o.evictStale()
	o.pollDiscovery(ctx)

	mints := o.monitored()
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup
	for _, mint := range mints {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(m solana.Pubkey) {
			defer wg.Done()
			defer func() { <-sem }()
			o.evaluateToken(ctx, m)
		}(mint)
	}
	wg.Wait()

	if bal, err := o.port.Balance(ctx, o.config.Wallet); err == nil {
		o.metrics.BalanceSOL.Set(bal.InexactFloat64())
	}
	o.metrics.OpenPositions.Set(float64(o.book.Count()))

	if o.config.CleanupEveryCycles > 0 && n%int64(o.config.CleanupEveryCycles) == 0 {
		o.rugDet.Cleanup()
	}
}

// evictStale drops lifecycle records older than MaxTokenAge, along with
// their watch history and lock. Held tokens are never evicted. Runs between
// cycles, so no evaluation holds a mint lock while its entry is removed.
// An evicted mint can be rediscovered if the feed emits it again.
func (o *Orchestrator) evictStale() {
	if o.config.MaxTokenAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-o.config.MaxTokenAge)

	o.mu.Lock()
	defer o.mu.Unlock()
	for m, e := range o.lifecycle {
		if e.state == StateHeld || e.at.After(cutoff) {
			continue
		}
		delete(o.lifecycle, m)
		delete(o.watch, m)
		delete(o.locks, m)
		log.Debug().Str("mint", string(m)).Str("state", string(e.state)).Msg("bot: stale token evicted")
	}
}

// pollDiscovery ingests fresh tokens and lets the strategy react to each
// discovery event. A feed failure skips discovery for this cycle only.
func (o *Orchestrator) pollDiscovery(ctx context.Context) {
	metas, err := o.feed.Poll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("bot: discovery poll failed, skipping cycle")
		return
	}

	for _, meta := range metas {
		o.mu.Lock()
		if _, known := o.lifecycle[meta.Mint]; known {
			o.mu.Unlock()
			continue
		}
		o.lifecycle[meta.Mint] = lifecycleEntry{state: StateDiscovered, at: time.Now()}
		o.mu.Unlock()
		o.metrics.Discovered.Inc()

		log.Info().
			Str("mint", string(meta.Mint)).
			Str("source", meta.Source).
			Msg("bot: token discovered")

		meta := meta
		intent := o.strat.Decide(ctx, strategy.Event{Type: strategy.EventDiscovery, Meta: &meta}, o)
		if intent != nil && intent.Action == strategy.ActionBuy {
			lock := o.lockFor(meta.Mint)
			lock.Lock()
			o.executeBuy(ctx, *intent, decimal.Decimal{})
			lock.Unlock()
		}
	}
}

// evaluateToken runs one evaluation cycle for a single mint under its lock.
// No two cycles for the same mint ever overlap.
func (o *Orchestrator) evaluateToken(ctx context.Context, mint solana.Pubkey) {
	lock := o.lockFor(mint)
	lock.Lock()
	defer lock.Unlock()

	tick, err := o.port.TickFor(ctx, mint)
	if err != nil || !tick.Valid() {
		o.metrics.SkippedTicks.Inc()
		log.Debug().Err(err).Str("mint", string(mint)).Msg("bot: bad tick, skipping token this cycle")
		return
	}

	if o.book.Held(mint) {
		o.evaluateHeld(ctx, mint, tick)
		return
	}
	o.evaluateWatched(ctx, mint, tick)
}

// evaluateHeld updates the position and runs the protective layers before
// giving the strategy a say. Any protective verdict short-circuits with a
// forced sell.
func (o *Orchestrator) evaluateHeld(ctx context.Context, mint solana.Pubkey, tick marketdata.Tick) {
	pos, err := o.book.Update(mint, tick.PriceUSD)
	if err != nil {
		// Contract violation: held but not in the book. Log and no-op.
		log.Error().Err(err).Str("mint", string(mint)).Msg("bot: position update conflict")
		return
	}

	analysis := o.rugDet.AnalyzeTick(mint, tick.PriceUSD, tick.VolumeUSD)
	if analysis.IsRugPull && analysis.Urgency == rug.UrgencyHigh {
		o.executeSell(ctx, mint, pos, fmt.Sprintf("rug detected (confidence %.2f)", analysis.Confidence), true)
		return
	}

	if o.trailing.ShouldArm(pos) {
		if armed, err := o.book.ArmTrailingStop(mint); err == nil {
			pos = armed
			log.Info().Str("mint", string(mint)).Float64("pnl_pct", pos.PnLPct).Msg("bot: trailing stop armed")
		}
	}
	if rec := o.trailing.Evaluate(pos); rec.ShouldExit {
		o.executeSell(ctx, mint, pos, "trailing stop: "+rec.Reason, true)
		return
	}

	if rec := o.timeExit.AnalyzeTimeBasedExit(pos); rec.ShouldExit {
		o.executeSell(ctx, mint, pos, "time exit: "+rec.Reason, true)
		return
	}

	o.trendFlt.AnalyzeMarket(mint, pos.History)

	snap := strategy.TickSnapshot{
		Mint:   mint,
		Price:  tick.PriceUSD.InexactFloat64(),
		Volume: tick.VolumeUSD.InexactFloat64(),
		Held:   true,
		Prices: pos.History,
	}
	intent := o.strat.Decide(ctx, strategy.Event{Type: strategy.EventTick, Tick: &snap}, o)
	if intent != nil && intent.Action == strategy.ActionSell {
		o.executeSell(ctx, mint, pos, intent.Reason, false)
	}
}

// evaluateWatched tracks an unheld token and considers entries.
func (o *Orchestrator) evaluateWatched(ctx context.Context, mint solana.Pubkey, tick marketdata.Tick) {
	prices := o.appendWatch(mint, tick.PriceUSD.InexactFloat64())
	o.rugDet.AnalyzeTick(mint, tick.PriceUSD, tick.VolumeUSD)
	o.trendFlt.AnalyzeMarket(mint, prices)

	snap := strategy.TickSnapshot{
		Mint:   mint,
		Price:  tick.PriceUSD.InexactFloat64(),
		Volume: tick.VolumeUSD.InexactFloat64(),
		Held:   false,
		Prices: prices,
	}
	intent := o.strat.Decide(ctx, strategy.Event{Type: strategy.EventTick, Tick: &snap}, o)
	if intent == nil || intent.Action != strategy.ActionBuy {
		return
	}

	if !o.trendFlt.ShouldAllowTrade(mint) {
		log.Info().Str("mint", string(mint)).Msg("bot: choppy market, entry blocked")
		return
	}
	o.executeBuy(ctx, *intent, tick.PriceUSD)
}

// executeBuy runs a buy intent through the gateway and commits Held on a
// confirmed swap. Caller holds the mint lock.
func (o *Orchestrator) executeBuy(ctx context.Context, intent strategy.TradeIntent, lastPrice decimal.Decimal) {
	if o.book.Held(intent.Mint) || o.book.Count() >= o.config.MaxPositions {
		return
	}

	notional := decimal.NewFromFloat(o.config.BuyNotionalSOL)
	result := o.gateway.Execute(o.execCtx(ctx), intent, notional)
	if !result.Success {
		o.metrics.FailedTrades.Inc()
		return
	}

	entry := result.ExecutedPrice
	if !entry.IsPositive() {
		entry = lastPrice
	}
	if !entry.IsPositive() {
		// Venue reported no price and the caller had none (discovery-path
		// buys). One tick fetch before giving up.
		if tick, err := o.port.TickFor(ctx, intent.Mint); err == nil && tick.Valid() {
			entry = tick.PriceUSD
		}
	}
	if !entry.IsPositive() {
		o.metrics.FailedTrades.Inc()
		log.Error().
			Str("mint", string(intent.Mint)).
			Str("signature", string(result.Signature)).
			Msg("bot: confirmed buy without a reference price, not tracking")
		return
	}
	if _, err := o.book.Open(intent.Mint, entry, notional, result.AmountOut); err != nil {
		log.Error().Err(err).Str("mint", string(intent.Mint)).Msg("bot: open conflict after confirmed buy")
		return
	}

	o.mu.Lock()
	o.lifecycle[intent.Mint] = lifecycleEntry{state: StateHeld, at: time.Now()}
	delete(o.watch, intent.Mint)
	o.mu.Unlock()
	o.metrics.Buys.Inc()
}

// executeSell runs a sell through the gateway and commits Disposed on a
// confirmed swap. On failure the token stays Held. Caller holds the mint
// lock.
func (o *Orchestrator) executeSell(ctx context.Context, mint solana.Pubkey, pos position.Position, reason string, forced bool) {
	intent := strategy.TradeIntent{
		Mint:     mint,
		Action:   strategy.ActionSell,
		Forced:   forced,
		Reason:   reason,
		Strategy: o.strat.Name(),
	}

	result := o.gateway.Execute(o.execCtx(ctx), intent, pos.AmountToken)
	if !result.Success {
		o.metrics.FailedTrades.Inc()
		return
	}

	o.book.Remove(mint)
	o.mu.Lock()
	o.lifecycle[mint] = lifecycleEntry{state: StateDisposed, at: time.Now()}
	o.mu.Unlock()

	o.metrics.Sells.Inc()
	if forced {
		o.metrics.ForcedExits.Inc()
	}

	log.Info().
		Str("mint", string(mint)).
		Str("reason", reason).
		Bool("forced", forced).
		Float64("pnl_pct", pos.PnLPct).
		Msg("bot: position disposed")
}

// execCtx detaches execution from loop cancellation so stopping the bot
// never aborts a swap mid-submit.
func (o *Orchestrator) execCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// monitored returns the token set evaluated this cycle: whitelist plus
// discovered plus held, minus disposed. Whitelisted mints survive disposal
// and stay eligible for re-entry.
func (o *Orchestrator) monitored() []solana.Pubkey {
	wl := make(map[solana.Pubkey]struct{})
	o.wlMu.RLock()
	for m := range o.whitelist {
		wl[m] = struct{}{}
	}
	o.wlMu.RUnlock()

	set := make(map[solana.Pubkey]struct{}, len(wl))
	for m := range wl {
		set[m] = struct{}{}
	}

	o.mu.Lock()
	for m, e := range o.lifecycle {
		switch e.state {
		case StateDiscovered:
			set[m] = struct{}{}
		case StateDisposed:
			if _, keep := wl[m]; !keep {
				delete(set, m)
			}
		}
	}
	o.mu.Unlock()

	for _, m := range o.book.Mints() {
		set[m] = struct{}{}
	}

	out := make([]solana.Pubkey, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

func (o *Orchestrator) lockFor(mint solana.Pubkey) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[mint]
	if !ok {
		l = &sync.Mutex{}
		o.locks[mint] = l
	}
	return l
}

func (o *Orchestrator) appendWatch(mint solana.Pubkey, price float64) []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	hist := append(o.watch[mint], price)
	if len(hist) > watchWindowCap {
		hist = hist[len(hist)-watchWindowCap:]
	}
	o.watch[mint] = hist

	out := make([]float64, len(hist))
	copy(out, hist)
	return out
}
