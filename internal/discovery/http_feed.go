package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// HTTPFeedConfig configures the listing-service poller.
type HTTPFeedConfig struct {
	Endpoint string `yaml:"endpoint"`
	TimeoutS int    `yaml:"timeout_s"`
}

// HTTPFeed polls a new-listings endpoint. The endpoint returns a JSON array
// of {mint, source, listed_at} objects; each Poll fetches the current page
// and the Dedup wrapper drops repeats.
type HTTPFeed struct {
	config HTTPFeedConfig
	client *http.Client
}

// NewHTTPFeed creates a listing-service poller.
func NewHTTPFeed(config HTTPFeedConfig) *HTTPFeed {
	timeout := time.Duration(config.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFeed{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFeed) Poll(ctx context.Context) ([]TokenMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: poll: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("discovery: poll: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: poll: status %d", resp.StatusCode)
	}

	var listings []struct {
		Mint     string    `json:"mint"`
		Source   string    `json:"source"`
		ListedAt time.Time `json:"listed_at"`
	}
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("discovery: poll: %w", err)
	}

	out := make([]TokenMeta, 0, len(listings))
	for _, l := range listings {
		if l.Mint == "" {
			continue
		}
		at := l.ListedAt
		if at.IsZero() {
			at = time.Now()
		}
		out = append(out, TokenMeta{
			Mint:         solana.Pubkey(l.Mint),
			Source:       l.Source,
			DiscoveredAt: at,
		})
	}
	return out, nil
}
