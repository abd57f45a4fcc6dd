package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// RemoteConfig configures the remote signing service client.
type RemoteConfig struct {
	URL      string `yaml:"url"`
	AuthKey  string `yaml:"auth_key"`
	TimeoutS int    `yaml:"timeout_s"`
}

// RemoteSigner submits transactions through a signing sidecar that holds the
// key. The trading core never sees key material.
//
// Protocol: POST {"tx": "<base64>"} to URL; 200 returns {"signature": "..."},
// 410 Gone means the quoted transaction expired (mapped to ErrStaleQuote),
// anything else is terminal.
type RemoteSigner struct {
	config RemoteConfig
	client *http.Client
}

// NewRemoteSigner creates a sidecar-backed signer.
func NewRemoteSigner(config RemoteConfig) *RemoteSigner {
	timeout := time.Duration(config.TimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteSigner{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *RemoteSigner) SignAndSubmit(ctx context.Context, unsignedTx string) (solana.Signature, error) {
	payload, err := json.Marshal(map[string]string{"tx": unsignedTx})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("wallet: submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("wallet: submit: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone:
		return "", ErrStaleQuote
	default:
		return "", fmt.Errorf("wallet: submit: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var body struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("wallet: submit: %w", err)
	}
	if body.Signature == "" {
		return "", fmt.Errorf("wallet: submit: empty signature in response")
	}
	return solana.Signature(body.Signature), nil
}
