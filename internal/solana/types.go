package solana

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string). Token mints are Pubkeys and
// serve as the primary key across the whole trading core.
type Pubkey string

// Signature is a Solana transaction signature.
type Signature string

// Well-known mints.
const (
	SOLMint  Pubkey = "So11111111111111111111111111111111111111112"
	USDCMint Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// ---------------------------------------------------------------------------
// Swap types
// ---------------------------------------------------------------------------

// Quote is a swap quote from the aggregator. The UnsignedTx is the serialized
// transaction the signer must sign and submit. Quotes go stale after a few
// blocks; ExpiresAt is advisory.
type Quote struct {
	InputMint  Pubkey          `json:"input_mint"`
	OutputMint Pubkey          `json:"output_mint"`
	AmountIn   decimal.Decimal `json:"amount_in"`
	AmountOut  decimal.Decimal `json:"amount_out"`
	PriceUSD   decimal.Decimal `json:"price_usd"`
	UnsignedTx string          `json:"unsigned_tx"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// SwapParams are the parameters for a token swap.
type SwapParams struct {
	InputMint   Pubkey          `json:"input_mint"`
	OutputMint  Pubkey          `json:"output_mint"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	SlippageBps int             `json:"slippage_bps"` // e.g. 100 = 1%
}

// SwapResult is the outcome of an executed swap attempt. A failed swap
// carries FailureReason and Success=false; the caller must leave token
// lifecycle state untouched on failure.
type SwapResult struct {
	Mint          Pubkey          `json:"mint"`
	Success       bool            `json:"success"`
	Signature     Signature       `json:"signature,omitempty"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	AmountOut     decimal.Decimal `json:"amount_out"`
	Attempts      int             `json:"attempts"`
	FailureReason string          `json:"failure_reason,omitempty"`
}
