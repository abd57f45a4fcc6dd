package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter MetricType = "counter"
	MetricGauge   MetricType = "gauge"
)

// MetricEntry is a point-in-time snapshot of one metric.
type MetricEntry struct {
	Name      string     `json:"name"`
	Type      MetricType `json:"type"`
	Help      string     `json:"help"`
	Value     float64    `json:"value"`
	Timestamp time.Time  `json:"ts"`
}

// Counter is a monotonically increasing counter, lock-free via atomics.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by delta (negative deltas are ignored).
func (c *Counter) Add(delta int64) {
	if delta > 0 {
		c.value.Add(delta)
	}
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge can go up and down.
type Gauge struct {
	name string
	help string
	mu   sync.Mutex
	v    float64
}

// Set sets the gauge.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.v
}

// Registry manages all metrics. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
	}
}

// NewCounter registers a counter, returning the existing one on name clash.
func (r *Registry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// NewGauge registers a gauge, returning the existing one on name clash.
func (r *Registry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// Snapshot returns all metric entries in deterministic (sorted) order.
func (r *Registry) Snapshot() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges))
	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		entries = append(entries, MetricEntry{
			Name: c.name, Type: MetricCounter, Help: c.help,
			Value: float64(c.Value()), Timestamp: now,
		})
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		entries = append(entries, MetricEntry{
			Name: g.name, Type: MetricGauge, Help: g.help,
			Value: g.Value(), Timestamp: now,
		})
	}
	return entries
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BotMetrics is the pre-wired metric set for the trading core.
type BotMetrics struct {
	Registry *Registry

	Discovered   *Counter
	Buys         *Counter
	Sells        *Counter
	ForcedExits  *Counter
	FailedTrades *Counter
	SkippedTicks *Counter

	OpenPositions *Gauge
	BalanceSOL    *Gauge
}

// NewBotMetrics creates the standard bot registry.
func NewBotMetrics() *BotMetrics {
	r := NewRegistry()
	return &BotMetrics{
		Registry:      r,
		Discovered:    r.NewCounter("bswap_tokens_discovered_total", "Tokens seen by the discovery feed"),
		Buys:          r.NewCounter("bswap_buys_total", "Successful buy swaps"),
		Sells:         r.NewCounter("bswap_sells_total", "Successful sell swaps"),
		ForcedExits:   r.NewCounter("bswap_forced_exits_total", "Exits forced by protective layers"),
		FailedTrades:  r.NewCounter("bswap_failed_trades_total", "Swap attempts that failed terminally"),
		SkippedTicks:  r.NewCounter("bswap_skipped_ticks_total", "Evaluation cycles skipped on bad ticks"),
		OpenPositions: r.NewGauge("bswap_open_positions", "Currently held positions"),
		BalanceSOL:    r.NewGauge("bswap_balance_sol", "Last observed wallet balance in SOL"),
	}
}
