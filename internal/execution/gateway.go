package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/marketdata"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
	"github.com/DoktorBog/Bswap-sub004/internal/strategy"
	"github.com/DoktorBog/Bswap-sub004/internal/wallet"
)

// ---------------------------------------------------------------------------
// Execution Gateway — intent to signed, submitted swap with quote refresh
// and bounded retries.
// ---------------------------------------------------------------------------

// Config configures the gateway.
type Config struct {
	// MaxAttempts bounds quote-refresh retries on stale quotes.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelayMs between attempts.
	RetryDelayMs int `yaml:"retry_delay_ms"`

	// DryRun logs intents and fabricates signatures without submitting.
	DryRun bool `yaml:"dry_run"`
}

// DefaultConfig returns three attempts, 250ms apart, dry-run off.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		RetryDelayMs: 250,
	}
}

// Gateway executes trade intents. A stale quote is retried with a fresh
// quote up to MaxAttempts; any other failure is terminal and surfaced in the
// result. The gateway never mutates lifecycle state; on failure the caller
// leaves the token exactly where it was.
type Gateway struct {
	config Config
	port   marketdata.Port
	signer wallet.Signer
}

// NewGateway creates an execution gateway.
func NewGateway(config Config, port marketdata.Port, signer wallet.Signer) *Gateway {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Gateway{config: config, port: port, signer: signer}
}

// Execute converts the intent into a swap of the given amount. For a buy the
// amount is the SOL notional; for a sell it is the token amount.
func (g *Gateway) Execute(ctx context.Context, intent strategy.TradeIntent, amount decimal.Decimal) solana.SwapResult {
	input, output := solana.SOLMint, intent.Mint
	if intent.Action == strategy.ActionSell {
		input, output = intent.Mint, solana.SOLMint
	}

	log.Info().
		Str("mint", string(intent.Mint)).
		Str("action", string(intent.Action)).
		Bool("forced", intent.Forced).
		Str("amount", amount.String()).
		Str("reason", intent.Reason).
		Bool("dry_run", g.config.DryRun).
		Msg("gateway: executing intent")

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		attempts = attempt
		quote, err := g.port.Quote(ctx, input, output, amount)
		if err != nil {
			lastErr = fmt.Errorf("quote: %w", err)
			break
		}

		if g.config.DryRun {
			return solana.SwapResult{
				Mint:          intent.Mint,
				Success:       true,
				Signature:     solana.Signature(fmt.Sprintf("DRYRUN-%s-%s", intent.Action, intent.Mint)),
				ExecutedPrice: quote.PriceUSD,
				AmountOut:     quote.AmountOut,
				Attempts:      attempt,
			}
		}

		sig, err := g.signer.SignAndSubmit(ctx, quote.UnsignedTx)
		if err == nil {
			return solana.SwapResult{
				Mint:          intent.Mint,
				Success:       true,
				Signature:     sig,
				ExecutedPrice: quote.PriceUSD,
				AmountOut:     quote.AmountOut,
				Attempts:      attempt,
			}
		}

		lastErr = err
		if !errors.Is(err, wallet.ErrStaleQuote) {
			// Signer/network failures are terminal for the intent.
			break
		}

		log.Warn().
			Str("mint", string(intent.Mint)).
			Int("attempt", attempt).
			Int("max", g.config.MaxAttempts).
			Msg("gateway: quote went stale, refreshing")

		if g.config.RetryDelayMs > 0 && attempt < g.config.MaxAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = g.config.MaxAttempts
			case <-time.After(time.Duration(g.config.RetryDelayMs) * time.Millisecond):
			}
		}
	}

	reason := "unknown failure"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	log.Error().
		Str("mint", string(intent.Mint)).
		Str("action", string(intent.Action)).
		Str("reason", reason).
		Msg("gateway: intent FAILED")

	return solana.SwapResult{
		Mint:          intent.Mint,
		Success:       false,
		FailureReason: reason,
		Attempts:      attempts,
	}
}
