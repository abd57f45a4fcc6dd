package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// Jupiter Port — live Port over the Jupiter quote/price APIs and the Solana
// JSON-RPC for balances.
// ---------------------------------------------------------------------------

// JupiterConfig configures the live market data port.
type JupiterConfig struct {
	QuoteURL string `yaml:"quote_url"`
	PriceURL string `yaml:"price_url"`
	RPCURL   string `yaml:"rpc_url"`
	TimeoutS int    `yaml:"timeout_s"`

	// QuoteTTLS is how long a fetched quote stays submittable.
	QuoteTTLS int `yaml:"quote_ttl_s"`
}

// DefaultJupiterConfig returns mainnet endpoints.
func DefaultJupiterConfig() JupiterConfig {
	return JupiterConfig{
		QuoteURL:  "https://quote-api.jup.ag/v6/quote",
		PriceURL:  "https://price.jup.ag/v6/price",
		RPCURL:    "https://api.mainnet-beta.solana.com",
		TimeoutS:  10,
		QuoteTTLS: 30,
	}
}

// JupiterPort is the production Port. All methods are plain request/response
// calls; freshness is the caller's problem via Quote.ExpiresAt.
type JupiterPort struct {
	config JupiterConfig
	client *http.Client
}

// NewJupiterPort creates a live port.
func NewJupiterPort(config JupiterConfig) *JupiterPort {
	timeout := time.Duration(config.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JupiterPort{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// rpcRequest is the JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func (p *JupiterPort) Balance(ctx context.Context, wallet solana.Pubkey) (decimal.Decimal, error) {
	var resp struct {
		Result struct {
			Value uint64 `json:"value"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := p.rpcCall(ctx, "getBalance", []interface{}{string(wallet)}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Error != nil {
		return decimal.Zero, fmt.Errorf("jupiter: getBalance: %s", resp.Error.Message)
	}
	// Lamports to SOL.
	return decimal.NewFromInt(int64(resp.Result.Value)).Shift(-9), nil
}

func (p *JupiterPort) Holdings(ctx context.Context, wallet solana.Pubkey) (map[solana.Pubkey]decimal.Decimal, error) {
	params := []interface{}{
		string(wallet),
		map[string]string{"programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
		map[string]string{"encoding": "jsonParsed"},
	}
	var resp struct {
		Result struct {
			Value []struct {
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								Mint        string `json:"mint"`
								TokenAmount struct {
									UIAmountString string `json:"uiAmountString"`
								} `json:"tokenAmount"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
			} `json:"value"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := p.rpcCall(ctx, "getTokenAccountsByOwner", params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("jupiter: getTokenAccountsByOwner: %s", resp.Error.Message)
	}

	out := make(map[solana.Pubkey]decimal.Decimal, len(resp.Result.Value))
	for _, acc := range resp.Result.Value {
		info := acc.Account.Data.Parsed.Info
		amount, err := decimal.NewFromString(info.TokenAmount.UIAmountString)
		if err != nil || !amount.IsPositive() {
			continue
		}
		out[solana.Pubkey(info.Mint)] = amount
	}
	return out, nil
}

func (p *JupiterPort) Quote(ctx context.Context, input, output solana.Pubkey, amount decimal.Decimal) (solana.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", string(input))
	q.Set("outputMint", string(output))
	q.Set("amount", amount.Shift(9).Truncate(0).String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.QuoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return solana.Quote{}, err
	}

	var body struct {
		OutAmount      string `json:"outAmount"`
		SwapUsdValue   string `json:"swapUsdValue"`
		SerializedSwap string `json:"swapTransaction"`
	}
	if err := p.doJSON(req, &body); err != nil {
		return solana.Quote{}, fmt.Errorf("jupiter: quote: %w", err)
	}

	out, err := decimal.NewFromString(body.OutAmount)
	if err != nil {
		return solana.Quote{}, fmt.Errorf("jupiter: quote: bad outAmount %q", body.OutAmount)
	}
	out = out.Shift(-9)

	price := decimal.Zero
	if usd, err := decimal.NewFromString(body.SwapUsdValue); err == nil && out.IsPositive() {
		price = usd.Div(out)
	}

	ttl := time.Duration(p.config.QuoteTTLS) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return solana.Quote{
		InputMint:  input,
		OutputMint: output,
		AmountIn:   amount,
		AmountOut:  out,
		PriceUSD:   price,
		UnsignedTx: body.SerializedSwap,
		ExpiresAt:  time.Now().Add(ttl),
	}, nil
}

func (p *JupiterPort) TickFor(ctx context.Context, mint solana.Pubkey) (Tick, error) {
	q := url.Values{}
	q.Set("ids", string(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.PriceURL+"?"+q.Encode(), nil)
	if err != nil {
		return Tick{}, err
	}

	var body struct {
		Data map[string]struct {
			Price     float64 `json:"price"`
			Volume24h float64 `json:"volume24h"`
		} `json:"data"`
	}
	if err := p.doJSON(req, &body); err != nil {
		return Tick{}, fmt.Errorf("jupiter: price: %w", err)
	}

	entry, ok := body.Data[string(mint)]
	if !ok {
		return Tick{}, fmt.Errorf("jupiter: price: no data for %s", mint)
	}
	return Tick{
		Mint:      mint,
		PriceUSD:  decimal.NewFromFloat(entry.Price),
		VolumeUSD: decimal.NewFromFloat(entry.Volume24h),
		Ts:        time.Now(),
	}, nil
}

func (p *JupiterPort) rpcCall(ctx context.Context, method string, params []interface{}, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.doJSON(req, out)
}

func (p *JupiterPort) doJSON(req *http.Request, out interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return json.Unmarshal(data, out)
}
