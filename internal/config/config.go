package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DoktorBog/Bswap-sub004/internal/bot"
	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/execution"
	"github.com/DoktorBog/Bswap-sub004/internal/exits"
	"github.com/DoktorBog/Bswap-sub004/internal/marketdata"
	"github.com/DoktorBog/Bswap-sub004/internal/rug"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
	"github.com/DoktorBog/Bswap-sub004/internal/strategy"
	"github.com/DoktorBog/Bswap-sub004/internal/trend"
	"github.com/DoktorBog/Bswap-sub004/internal/wallet"
)

// ---------------------------------------------------------------------------
// Configuration — single YAML file, env-expanded, validated at startup.
// Durations are plain integers (seconds or minutes, named in the field) so
// the file stays yaml.v3-friendly; builders convert to time.Duration.
// ---------------------------------------------------------------------------

// GeneralConfig covers process-wide settings.
type GeneralConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug|info|warn|error
	LogPretty bool   `yaml:"log_pretty"` // console writer instead of JSON
}

// WalletConfig identifies the trading wallet. Signing happens in the remote
// signer service; no key material lives in this config.
type WalletConfig struct {
	Pubkey string `yaml:"pubkey"`
}

// BotConfig is the raw orchestrator section.
type BotConfig struct {
	IntervalMs         int     `yaml:"interval_ms"`
	Workers            int     `yaml:"workers"`
	MaxPositions       int     `yaml:"max_positions"`
	BuyNotionalSOL     float64 `yaml:"buy_notional_sol"`
	MaxTokenAgeS       int     `yaml:"max_token_age_s"`
	CleanupEveryCycles int     `yaml:"cleanup_every_cycles"`
}

// PositionConfig sizes the per-position price history.
type PositionConfig struct {
	MaxHistory int `yaml:"max_history"`
}

// RugConfig is the raw rug detector section.
type RugConfig struct {
	PriceDropPct      float64 `yaml:"price_drop_pct"`
	VolumeCollapsePct float64 `yaml:"volume_collapse_pct"`
	WindowSize        int     `yaml:"window_size"`
	RetentionMin      int     `yaml:"retention_min"`
}

// TrendConfig is the raw trend filter section.
type TrendConfig struct {
	MinSamples          int     `yaml:"min_samples"`
	TrendingThreshold   float64 `yaml:"trending_threshold"`
	ChoppyReversalRatio float64 `yaml:"choppy_reversal_ratio"`
	AllowChoppy         bool    `yaml:"allow_choppy"`
}

// ExitsConfig is the raw protective-exit section.
type ExitsConfig struct {
	MinHoldS              int     `yaml:"min_hold_s"`
	MaxUnprofitableHoldS  int     `yaml:"max_unprofitable_hold_s"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`
	TrailingTrailPct      float64 `yaml:"trailing_trail_pct"`
}

// ExecutionConfig is the raw gateway section.
type ExecutionConfig struct {
	MaxAttempts  int  `yaml:"max_attempts"`
	RetryDelayMs int  `yaml:"retry_delay_ms"`
	DryRun       bool `yaml:"dry_run"`
}

// FeedConfig is the raw websocket tick feed section.
type FeedConfig struct {
	Endpoint         string `yaml:"endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
}

// DiscoveryConfig controls the listing poller and its dedup window.
type DiscoveryConfig struct {
	Endpoint          string `yaml:"endpoint"`
	TimeoutS          int    `yaml:"timeout_s"`
	DedupRetentionMin int    `yaml:"dedup_retention_min"`
}

// ServerConfig is the HTTP control surface section.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Config is the root of the YAML file.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Bot       BotConfig       `yaml:"bot"`
	Position  PositionConfig  `yaml:"position"`
	Rug       RugConfig       `yaml:"rug"`
	Trend     TrendConfig     `yaml:"trend"`
	Exits     ExitsConfig     `yaml:"exits"`
	Strategy  strategy.Config `yaml:"strategy"`
	Execution ExecutionConfig `yaml:"execution"`
	Feed      FeedConfig      `yaml:"feed"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Server    ServerConfig    `yaml:"server"`

	// Market and Signer are live-mode endpoints; unused in stub/dry runs.
	// Signer.AuthKey is typically ${SIGNER_AUTH_KEY} and env-expanded.
	Market marketdata.JupiterConfig `yaml:"market"`
	Signer wallet.RemoteConfig      `yaml:"signer"`
}

// Load reads, env-expands, parses, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted config suitable for stub/dry runs.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.Execution.DryRun = true
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}

	if c.Bot.IntervalMs <= 0 {
		c.Bot.IntervalMs = 30_000
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Bot.MaxPositions <= 0 {
		c.Bot.MaxPositions = 5
	}
	if c.Bot.BuyNotionalSOL <= 0 {
		c.Bot.BuyNotionalSOL = 0.1
	}
	if c.Bot.MaxTokenAgeS <= 0 {
		c.Bot.MaxTokenAgeS = 600
	}
	if c.Bot.CleanupEveryCycles <= 0 {
		c.Bot.CleanupEveryCycles = 10
	}

	if c.Position.MaxHistory <= 0 {
		c.Position.MaxHistory = 200
	}

	if c.Rug.PriceDropPct <= 0 {
		c.Rug.PriceDropPct = 0.45
	}
	if c.Rug.VolumeCollapsePct <= 0 {
		c.Rug.VolumeCollapsePct = 0.90
	}
	if c.Rug.WindowSize <= 0 {
		c.Rug.WindowSize = 30
	}
	if c.Rug.RetentionMin <= 0 {
		c.Rug.RetentionMin = 30
	}

	if c.Trend.MinSamples <= 0 {
		c.Trend.MinSamples = 3
	}
	if c.Trend.TrendingThreshold <= 0 {
		c.Trend.TrendingThreshold = 0.6
	}
	if c.Trend.ChoppyReversalRatio <= 0 {
		c.Trend.ChoppyReversalRatio = 0.5
	}

	if c.Exits.MinHoldS <= 0 {
		c.Exits.MinHoldS = 300
	}
	if c.Exits.MaxUnprofitableHoldS <= 0 {
		c.Exits.MaxUnprofitableHoldS = 3600
	}
	if c.Exits.TrailingActivationPct <= 0 {
		c.Exits.TrailingActivationPct = 20
	}
	if c.Exits.TrailingTrailPct <= 0 {
		c.Exits.TrailingTrailPct = 15
	}

	if c.Strategy.Variant == "" {
		c.Strategy = strategy.DefaultConfig()
	} else {
		def := strategy.DefaultConfig()
		if c.Strategy.Oscillator.Period <= 0 {
			c.Strategy.Oscillator = def.Oscillator
		}
		if c.Strategy.Priority.PreferredSource == "" {
			c.Strategy.Priority = def.Priority
		}
		if c.Strategy.Model.MinConfidence <= 0 {
			c.Strategy.Model = def.Model
		}
	}

	if c.Execution.MaxAttempts <= 0 {
		c.Execution.MaxAttempts = 3
	}
	if c.Execution.RetryDelayMs <= 0 {
		c.Execution.RetryDelayMs = 250
	}

	if c.Feed.Endpoint == "" {
		c.Feed.Endpoint = marketdata.DefaultWSFeedConfig().Endpoint
	}
	if c.Feed.ReconnectDelayMs <= 0 {
		c.Feed.ReconnectDelayMs = 1000
	}
	if c.Feed.PingIntervalS <= 0 {
		c.Feed.PingIntervalS = 30
	}

	if c.Discovery.DedupRetentionMin <= 0 {
		c.Discovery.DedupRetentionMin = 60
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	def := marketdata.DefaultJupiterConfig()
	if c.Market.QuoteURL == "" {
		c.Market.QuoteURL = def.QuoteURL
	}
	if c.Market.PriceURL == "" {
		c.Market.PriceURL = def.PriceURL
	}
	if c.Market.RPCURL == "" {
		c.Market.RPCURL = def.RPCURL
	}
	if c.Market.TimeoutS <= 0 {
		c.Market.TimeoutS = def.TimeoutS
	}
	if c.Market.QuoteTTLS <= 0 {
		c.Market.QuoteTTLS = def.QuoteTTLS
	}
}

// Validate rejects configs the bot cannot safely run with. A missing signer
// outside dry-run is the one fatal misconfiguration.
func (c *Config) Validate() error {
	if !c.Execution.DryRun && c.Signer.URL == "" {
		return fmt.Errorf("config: signer.url is required unless execution.dry_run is set")
	}
	if c.Rug.PriceDropPct >= 1 {
		return fmt.Errorf("config: rug.price_drop_pct must be a fraction below 1, got %v", c.Rug.PriceDropPct)
	}
	if c.Exits.TrailingTrailPct >= 100 {
		return fmt.Errorf("config: exits.trailing_trail_pct must be below 100, got %v", c.Exits.TrailingTrailPct)
	}
	if _, err := strategy.New(c.Strategy, strategy.NewStubScorer(strategy.Score{})); err != nil {
		return err
	}
	return nil
}

// --- builders ---

func (c *Config) BotConfig() bot.Config {
	return bot.Config{
		IntervalMs:         c.Bot.IntervalMs,
		Workers:            c.Bot.Workers,
		MaxPositions:       c.Bot.MaxPositions,
		BuyNotionalSOL:     c.Bot.BuyNotionalSOL,
		MaxTokenAge:        time.Duration(c.Bot.MaxTokenAgeS) * time.Second,
		Wallet:             solana.Pubkey(c.Wallet.Pubkey),
		CleanupEveryCycles: c.Bot.CleanupEveryCycles,
	}
}

func (c *Config) RugConfig() rug.Config {
	return rug.Config{
		PriceDropPct:      c.Rug.PriceDropPct,
		VolumeCollapsePct: c.Rug.VolumeCollapsePct,
		WindowSize:        c.Rug.WindowSize,
		Retention:         time.Duration(c.Rug.RetentionMin) * time.Minute,
	}
}

func (c *Config) TrendConfig() trend.Config {
	return trend.Config{
		MinSamples:          c.Trend.MinSamples,
		TrendingThreshold:   c.Trend.TrendingThreshold,
		ChoppyReversalRatio: c.Trend.ChoppyReversalRatio,
		AllowChoppy:         c.Trend.AllowChoppy,
	}
}

func (c *Config) TimePolicyConfig() exits.TimePolicyConfig {
	return exits.TimePolicyConfig{
		MinHold:             time.Duration(c.Exits.MinHoldS) * time.Second,
		MaxUnprofitableHold: time.Duration(c.Exits.MaxUnprofitableHoldS) * time.Second,
	}
}

func (c *Config) TrailingConfig() exits.TrailingConfig {
	return exits.TrailingConfig{
		ActivationGainPct: c.Exits.TrailingActivationPct,
		TrailPct:          c.Exits.TrailingTrailPct,
	}
}

func (c *Config) ExecutionConfig() execution.Config {
	return execution.Config{
		MaxAttempts:  c.Execution.MaxAttempts,
		RetryDelayMs: c.Execution.RetryDelayMs,
		DryRun:       c.Execution.DryRun,
	}
}

func (c *Config) FeedConfig() marketdata.WSFeedConfig {
	return marketdata.WSFeedConfig{
		Endpoint:         c.Feed.Endpoint,
		ReconnectDelayMs: c.Feed.ReconnectDelayMs,
		PingIntervalS:    c.Feed.PingIntervalS,
	}
}

func (c *Config) DedupRetention() time.Duration {
	return time.Duration(c.Discovery.DedupRetentionMin) * time.Minute
}

func (c *Config) HTTPFeedConfig() discovery.HTTPFeedConfig {
	return discovery.HTTPFeedConfig{
		Endpoint: c.Discovery.Endpoint,
		TimeoutS: c.Discovery.TimeoutS,
	}
}
