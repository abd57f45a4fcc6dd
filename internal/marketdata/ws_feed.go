package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// WebSocket Tick Feed — real-time price/volume stream with a last-tick cache.
// Fronts the pull-based Port so evaluation cycles read fresh data without an
// RPC round-trip per token.
// ---------------------------------------------------------------------------

// WSFeedConfig configures the websocket tick feed.
type WSFeedConfig struct {
	Endpoint         string `yaml:"endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
}

// DefaultWSFeedConfig returns mainnet defaults.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		Endpoint:         "wss://api.mainnet-beta.solana.com",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
	}
}

// tickMessage is the wire format of a feed update.
type tickMessage struct {
	Mint      solana.Pubkey   `json:"mint"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
}

// WSFeed maintains a websocket subscription and caches the latest tick per
// mint. It reconnects forever until its context is cancelled.
type WSFeed struct {
	config WSFeedConfig

	mu     sync.RWMutex
	latest map[solana.Pubkey]Tick

	messagesRecv atomic.Int64
	reconnects   atomic.Int64
	connected    atomic.Bool
}

// NewWSFeed creates a websocket tick feed.
func NewWSFeed(config WSFeedConfig) *WSFeed {
	return &WSFeed{
		config: config,
		latest: make(map[solana.Pubkey]Tick),
	}
}

// Start runs the read loop until ctx is cancelled.
func (f *WSFeed) Start(ctx context.Context) {
	go f.runLoop(ctx)
}

// Latest returns the most recent tick for a mint, if any.
func (f *WSFeed) Latest(mint solana.Pubkey) (Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[mint]
	return t, ok
}

// Connected reports whether the feed currently holds a live connection.
func (f *WSFeed) Connected() bool { return f.connected.Load() }

func (f *WSFeed) runLoop(ctx context.Context) {
	delay := time.Duration(f.config.ReconnectDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.readUntilClosed(ctx); err != nil && ctx.Err() == nil {
			f.reconnects.Add(1)
			log.Warn().Err(err).
				Str("endpoint", f.config.Endpoint).
				Int64("reconnects", f.reconnects.Load()).
				Msg("wsfeed: connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (f *WSFeed) readUntilClosed(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.config.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("wsfeed: dial %s: %w", f.config.Endpoint, err)
	}
	defer conn.Close()

	f.connected.Store(true)
	defer f.connected.Store(false)
	log.Info().Str("endpoint", f.config.Endpoint).Msg("wsfeed: connected")

	// Close the connection when ctx is cancelled to unblock ReadMessage,
	// and keep the connection alive with pings.
	pingInterval := time.Duration(f.config.PingIntervalS) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("wsfeed: read: %w", err)
		}
		f.messagesRecv.Add(1)
		f.handleMessage(data)
	}
}

func (f *WSFeed) handleMessage(data []byte) {
	var msg tickMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("wsfeed: dropping unparseable message")
		return
	}
	tick := Tick{
		Mint:      msg.Mint,
		PriceUSD:  msg.PriceUSD,
		VolumeUSD: msg.VolumeUSD,
		Ts:        time.Now(),
	}
	if !tick.Valid() {
		return
	}
	f.mu.Lock()
	f.latest[tick.Mint] = tick
	f.mu.Unlock()
}

// ---------------------------------------------------------------------------
// StreamPort — Port that answers TickFor from the feed cache and delegates
// everything else to an inner Port.
// ---------------------------------------------------------------------------

// StreamPort wraps an inner Port with a WSFeed. TickFor prefers the cached
// stream tick and falls back to the inner port when the feed has not seen
// the mint yet.
type StreamPort struct {
	inner Port
	feed  *WSFeed
}

// NewStreamPort creates a stream-backed port.
func NewStreamPort(inner Port, feed *WSFeed) *StreamPort {
	return &StreamPort{inner: inner, feed: feed}
}

func (p *StreamPort) Balance(ctx context.Context, wallet solana.Pubkey) (decimal.Decimal, error) {
	return p.inner.Balance(ctx, wallet)
}

func (p *StreamPort) Holdings(ctx context.Context, wallet solana.Pubkey) (map[solana.Pubkey]decimal.Decimal, error) {
	return p.inner.Holdings(ctx, wallet)
}

func (p *StreamPort) Quote(ctx context.Context, input, output solana.Pubkey, amount decimal.Decimal) (solana.Quote, error) {
	return p.inner.Quote(ctx, input, output, amount)
}

func (p *StreamPort) TickFor(ctx context.Context, mint solana.Pubkey) (Tick, error) {
	if t, ok := p.feed.Latest(mint); ok {
		return t, nil
	}
	return p.inner.TickFor(ctx, mint)
}
