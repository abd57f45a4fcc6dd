package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
execution:
  dry_run: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, 30_000, cfg.Bot.IntervalMs)
	assert.Equal(t, 8, cfg.Bot.Workers)
	assert.Equal(t, 5, cfg.Bot.MaxPositions)
	assert.Equal(t, "oscillator", cfg.Strategy.Variant)
	assert.Equal(t, 3, cfg.Execution.MaxAttempts)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.NotEmpty(t, cfg.Market.QuoteURL)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
bot:
  interval_ms: 5000
  max_positions: 2
rug:
  price_drop_pct: 0.6
  retention_min: 10
strategy:
  variant: priority
  priority:
    preferred_source: raydium
execution:
  dry_run: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Bot.IntervalMs)
	assert.Equal(t, 2, cfg.Bot.MaxPositions)
	assert.Equal(t, "priority", cfg.Strategy.Variant)
	assert.Equal(t, "raydium", cfg.Strategy.Priority.PreferredSource)
	assert.Equal(t, 0.6, cfg.RugConfig().PriceDropPct)
	assert.Equal(t, 10*time.Minute, cfg.RugConfig().Retention)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("BSWAP_TEST_SIGNER_URL", "http://signer.internal:9000/sign")

	path := writeConfig(t, `
signer:
  url: ${BSWAP_TEST_SIGNER_URL}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://signer.internal:9000/sign", cfg.Signer.URL)
}

func TestMissingSignerFailsOutsideDryRun(t *testing.T) {
	path := writeConfig(t, `
execution:
  dry_run: false
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer.url")
}

func TestUnknownStrategyVariantFails(t *testing.T) {
	path := writeConfig(t, `
execution:
  dry_run: true
strategy:
  variant: martingale
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestInvalidThresholdsFail(t *testing.T) {
	path := writeConfig(t, `
execution:
  dry_run: true
rug:
  price_drop_pct: 1.5
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDurationBuilders(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10*time.Minute, cfg.BotConfig().MaxTokenAge)
	assert.Equal(t, 5*time.Minute, cfg.TimePolicyConfig().MinHold)
	assert.Equal(t, time.Hour, cfg.TimePolicyConfig().MaxUnprofitableHold)
	assert.Equal(t, time.Hour, cfg.DedupRetention())
	assert.True(t, cfg.Execution.DryRun)
}
