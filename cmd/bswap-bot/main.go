package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DoktorBog/Bswap-sub004/internal/bot"
	"github.com/DoktorBog/Bswap-sub004/internal/config"
	"github.com/DoktorBog/Bswap-sub004/internal/discovery"
	"github.com/DoktorBog/Bswap-sub004/internal/execution"
	"github.com/DoktorBog/Bswap-sub004/internal/exits"
	"github.com/DoktorBog/Bswap-sub004/internal/marketdata"
	"github.com/DoktorBog/Bswap-sub004/internal/observability"
	"github.com/DoktorBog/Bswap-sub004/internal/position"
	"github.com/DoktorBog/Bswap-sub004/internal/rug"
	"github.com/DoktorBog/Bswap-sub004/internal/server"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
	"github.com/DoktorBog/Bswap-sub004/internal/strategy"
	"github.com/DoktorBog/Bswap-sub004/internal/trend"
	"github.com/DoktorBog/Bswap-sub004/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("bswap-bot: fatal")
	}
}

func run() error {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to YAML config")
		stubMode   = flag.Bool("stub", false, "run against in-memory stubs (no network)")
		autoStart  = flag.Bool("autostart", true, "start the trading loop immediately")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath, *stubMode)
	if err != nil {
		return err
	}
	setupLogging(cfg.General.LogLevel, cfg.General.LogPretty)

	log.Info().
		Bool("stub", *stubMode).
		Bool("dry_run", cfg.Execution.DryRun).
		Str("strategy", cfg.Strategy.Variant).
		Msg("bswap-bot: starting")

	port, feed, signer := buildAdapters(cfg, *stubMode)
	scorer := buildScorer(cfg, *stubMode)

	strat, err := strategy.New(cfg.Strategy, scorer)
	if err != nil {
		return err
	}

	metrics := observability.NewBotMetrics()
	orch := bot.New(
		cfg.BotConfig(),
		port,
		feed,
		position.NewBook(cfg.Position.MaxHistory),
		rug.NewDetector(cfg.RugConfig()),
		trend.NewFilter(cfg.TrendConfig()),
		exits.NewTimePolicy(cfg.TimePolicyConfig()),
		exits.NewTrailingStop(cfg.TrailingConfig()),
		strat,
		execution.NewGateway(cfg.ExecutionConfig(), port, signer),
		metrics,
	)

	if *autoStart {
		if err := orch.Start(); err != nil {
			return err
		}
	}

	srv := server.New(cfg.Server.Addr, orch, metrics)
	srvErr := make(chan error, 1)
	if cfg.Server.Enabled {
		go func() { srvErr <- srv.Run() }()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("bswap-bot: shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error().Err(err).Msg("bswap-bot: control server failed")
		}
	}

	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("bswap-bot: server shutdown")
	}
	return nil
}

func loadConfig(path string, stub bool) (*config.Config, error) {
	if path == "" {
		if !stub {
			return nil, fmt.Errorf("bswap-bot: -config is required outside -stub mode")
		}
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildAdapters wires the market data port, discovery feed and signer for
// either stub or live mode. Stub mode seeds a demo token so a smoke run has
// something to trade.
func buildAdapters(cfg *config.Config, stub bool) (marketdata.Port, discovery.Feed, wallet.Signer) {
	if stub {
		port := marketdata.NewStub()
		demo := solana.Pubkey("DemoMint1111111111111111111111111111111111")
		port.PushPrices(demo, 1.00, 0.98, 0.95, 0.93, 0.95, 1.02, 1.10, 1.25, 1.40, 1.30)

		feed := discovery.NewStubFeed()
		feed.Emit(discovery.TokenMeta{
			Mint:         demo,
			Source:       "pumpfun",
			DiscoveredAt: time.Now(),
		})
		return port, feed, wallet.NewStubSigner()
	}

	jupiter := marketdata.NewJupiterPort(cfg.Market)
	wsFeed := marketdata.NewWSFeed(cfg.FeedConfig())
	wsFeed.Start(context.Background())

	var signer wallet.Signer
	if cfg.Execution.DryRun {
		signer = wallet.NewStubSigner()
	} else {
		signer = wallet.NewRemoteSigner(cfg.Signer)
	}

	listings := discovery.NewDedup(discovery.NewHTTPFeed(cfg.HTTPFeedConfig()), cfg.DedupRetention())
	return marketdata.NewStreamPort(jupiter, wsFeed), listings, signer
}

func buildScorer(cfg *config.Config, stub bool) strategy.Scorer {
	if cfg.Strategy.Variant != "model" {
		return nil
	}
	if stub || cfg.Strategy.Model.ScorerURL == "" {
		return strategy.NewStubScorer(strategy.Score{})
	}
	timeout := time.Duration(cfg.Strategy.Model.ScorerTimeoutS) * time.Second
	return strategy.NewHTTPScorer(cfg.Strategy.Model.ScorerURL, timeout)
}

func setupLogging(level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
