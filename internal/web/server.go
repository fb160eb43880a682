package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/infrastructure/notify"
	"github.com/vitos/crypto_scalper/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router   *gin.Engine
	server   *http.Server
	scalper  *usecase.Scalper
	settings *usecase.Settings
	journal  domain.TradeRepository
	notices  *notify.Queue
	logger   *zap.Logger

	// OnSettingsSaved, when set, persists settings accepted by PUT /api/settings.
	OnSettingsSaved func(usecase.ScalperSettings) error
}

func NewServer(
	port int,
	scalper *usecase.Scalper,
	settings *usecase.Settings,
	journal domain.TradeRepository,
	notices *notify.Queue,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:   gin.New(),
		scalper:  scalper,
		settings: settings,
		journal:  journal,
		notices:  notices,
		logger:   logger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")

	api.GET("/status", s.handleStatus)

	// Orders
	api.GET("/orders", s.handleListOrders)
	api.POST("/orders", s.handlePlaceOrder)

	// Scalper
	api.POST("/scalper/start", s.handleStart)
	api.POST("/scalper/stop", s.handleStop)

	// Settings
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handleUpdateSettings)

	// Journal
	api.GET("/trades", s.handleTrades)

	api.GET("/notifications", s.handleNotifications)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
