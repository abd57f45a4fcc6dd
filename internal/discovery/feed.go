package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Discovery Feed — newly listed tokens, restartable poll.
// ---------------------------------------------------------------------------

// TokenMeta describes a freshly discovered token.
type TokenMeta struct {
	Mint         solana.Pubkey `json:"mint"`
	Source       string        `json:"source"` // raydium|pumpfun|manual|...
	DiscoveredAt time.Time     `json:"discovered_at"`
}

// Age returns how long ago the token was discovered.
func (m TokenMeta) Age() time.Duration {
	return time.Since(m.DiscoveredAt)
}

// Feed produces newly listed tokens. Poll is restartable and may return the
// same token more than once; callers dedup (see Dedup) or tolerate repeats.
type Feed interface {
	Poll(ctx context.Context) ([]TokenMeta, error)
}

// ---------------------------------------------------------------------------
// Dedup wrapper
// ---------------------------------------------------------------------------

// Dedup wraps a Feed and drops mints it has already emitted. Memory is
// bounded by evicting entries older than the retention window.
type Dedup struct {
	inner     Feed
	retention time.Duration

	mu   sync.Mutex
	seen map[solana.Pubkey]time.Time
}

// NewDedup wraps a feed with dedup over the given retention window.
func NewDedup(inner Feed, retention time.Duration) *Dedup {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Dedup{
		inner:     inner,
		retention: retention,
		seen:      make(map[solana.Pubkey]time.Time),
	}
}

func (d *Dedup) Poll(ctx context.Context) ([]TokenMeta, error) {
	batch, err := d.inner.Poll(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-d.retention)
	for mint, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, mint)
		}
	}

	out := batch[:0]
	for _, meta := range batch {
		if _, dup := d.seen[meta.Mint]; dup {
			continue
		}
		d.seen[meta.Mint] = time.Now()
		out = append(out, meta)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Stub feed
// ---------------------------------------------------------------------------

// StubFeed is a scriptable feed that hands out queued tokens one batch per
// poll.
type StubFeed struct {
	mu       sync.Mutex
	batches  [][]TokenMeta
	failNext bool
}

// NewStubFeed creates an empty stub feed.
func NewStubFeed() *StubFeed {
	return &StubFeed{}
}

// Emit queues a batch of tokens for the next poll.
func (f *StubFeed) Emit(metas ...TokenMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, metas)
}

// SetFailNext makes the next poll fail.
func (f *StubFeed) SetFailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

func (f *StubFeed) Poll(_ context.Context) ([]TokenMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return nil, fmt.Errorf("stub: simulated feed failure")
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}
