package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoktorBog/Bswap-sub004/internal/bot"
	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/execution"
	"github.com/DoktorBog/Bswap-sub004/internal/exits"
	"github.com/DoktorBog/Bswap-sub004/internal/marketdata"
	"github.com/DoktorBog/Bswap-sub004/internal/observability"
	"github.com/DoktorBog/Bswap-sub004/internal/position"
	"github.com/DoktorBog/Bswap-sub004/internal/rug"
	"github.com/DoktorBog/Bswap-sub004/internal/strategy"
	"github.com/DoktorBog/Bswap-sub004/internal/trend"
	"github.com/DoktorBog/Bswap-sub004/internal/wallet"
)

func newTestServer(t *testing.T) (*Server, *bot.Orchestrator) {
	t.Helper()

	port := marketdata.NewStub()
	metrics := observability.NewBotMetrics()
	gw := execution.NewGateway(execution.Config{DryRun: true}, port, wallet.NewStubSigner())
	orch := bot.New(
		bot.Config{IntervalMs: 60_000, Workers: 2, MaxPositions: 2, BuyNotionalSOL: 1, MaxTokenAge: 10 * time.Minute},
		port,
		discovery.NewStubFeed(),
		position.NewBook(50),
		rug.NewDetector(rug.DefaultConfig()),
		trend.NewFilter(trend.DefaultConfig()),
		exits.NewTimePolicy(exits.DefaultTimePolicyConfig()),
		exits.NewTrailingStop(exits.DefaultTrailingConfig()),
		strategy.NewPriority(strategy.DefaultPriorityConfig()),
		gw, metrics)
	t.Cleanup(orch.Stop)

	return New(":0", orch, metrics), orch
}

func do(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	w := do(t, router, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var st bot.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.False(t, st.Running)
	assert.Equal(t, "priority", st.Strategy)
}

func TestStartStopEndpoints(t *testing.T) {
	s, orch := newTestServer(t)
	router := s.Router()

	w := do(t, router, http.MethodPost, "/start")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, orch.Running())

	w = do(t, router, http.MethodPost, "/start")
	assert.Equal(t, http.StatusConflict, w.Code, "double start conflicts")

	w = do(t, router, http.MethodPost, "/stop")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, orch.Running())
}

func TestWhitelistEndpoints(t *testing.T) {
	s, orch := newTestServer(t)
	router := s.Router()

	w := do(t, router, http.MethodPost, "/whitelist/SomeMint123")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, orch.IsWhitelisted("SomeMint123"))

	w = do(t, router, http.MethodGet, "/whitelist")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SomeMint123")

	w = do(t, router, http.MethodDelete, "/whitelist/SomeMint123")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, orch.IsWhitelisted("SomeMint123"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	w := do(t, router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bswap_buys_total")
}
