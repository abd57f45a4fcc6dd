package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/DoktorBog/Bswap-sub004/internal/bot"
	"github.com/DoktorBog/Bswap-sub004/internal/observability"
	"github.com/DoktorBog/Bswap-sub004/internal/solana"
)

// ---------------------------------------------------------------------------
// HTTP control surface — start/stop, status, whitelist and metrics.
// ---------------------------------------------------------------------------

// Server exposes the orchestrator over HTTP.
type Server struct {
	addr    string
	orch    *bot.Orchestrator
	metrics *observability.BotMetrics
	http    *http.Server
}

// New creates a control server.
func New(addr string, orch *bot.Orchestrator, metrics *observability.BotMetrics) *Server {
	return &Server{addr: addr, orch: orch, metrics: metrics}
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Run() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/start", s.handleStart)
	router.POST("/stop", s.handleStop)
	router.GET("/status", s.handleStatus)
	router.GET("/whitelist", s.handleWhitelistGet)
	router.POST("/whitelist/:mint", s.handleWhitelistAdd)
	router.DELETE("/whitelist/:mint", s.handleWhitelistRemove)
	router.GET("/metrics", s.handleMetrics)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("server: listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router builds the gin engine without binding a listener. Used by tests.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/start", s.handleStart)
	router.POST("/stop", s.handleStop)
	router.GET("/status", s.handleStatus)
	router.GET("/whitelist", s.handleWhitelistGet)
	router.POST("/whitelist/:mint", s.handleWhitelistAdd)
	router.DELETE("/whitelist/:mint", s.handleWhitelistRemove)
	router.GET("/metrics", s.handleMetrics)
	return router
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.orch.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.orch.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Status())
}

func (s *Server) handleWhitelistGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"whitelist": s.orch.Whitelist()})
}

func (s *Server) handleWhitelistAdd(c *gin.Context) {
	mint := c.Param("mint")
	if mint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mint required"})
		return
	}
	s.orch.AddToWhitelist(solana.Pubkey(mint))
	c.JSON(http.StatusOK, gin.H{"mint": mint, "whitelisted": true})
}

func (s *Server) handleWhitelistRemove(c *gin.Context) {
	mint := c.Param("mint")
	if mint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mint required"})
		return
	}
	s.orch.RemoveFromWhitelist(solana.Pubkey(mint))
	c.JSON(http.StatusOK, gin.H{"mint": mint, "whitelisted": false})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.metrics.Registry.Snapshot()})
}
