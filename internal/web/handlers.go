package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_scalper/internal/domain"
	"github.com/vitos/crypto_scalper/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) handleStatus(c *gin.Context) {
	buy, sell := s.scalper.Guards()
	successResponse(c, gin.H{
		"scalper": s.scalper.Status(),
		"guards":  gin.H{"slim_buy": buy, "slim_sell": sell},
	})
}

// handleListOrders returns the visible orders, or all of them with ?all=true.
func (s *Server) handleListOrders(c *gin.Context) {
	all := c.Query("all") == "true"
	orders := s.scalper.Orders()
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if all || !o.Hidden {
			out = append(out, o)
		}
	}
	successResponse(c, out)
}

type placeOrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// handlePlaceOrder sends a manual market order. The filled order is the
// position the scalper can later start from.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Symbol == "" {
		req.Symbol = s.settings.Get().Symbol
	}
	if !req.Quantity.IsPositive() {
		errorResponse(c, http.StatusBadRequest, "quantity must be positive")
		return
	}

	order, err := s.scalper.PlaceManual(c.Request.Context(), req.Symbol, req.Side, req.Quantity)
	if err != nil {
		s.logger.Warn("Manual order failed", zap.String("symbol", req.Symbol), zap.Error(err))
		switch {
		case errors.Is(err, usecase.ErrInvalidSide):
			errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, usecase.ErrGuardBusy):
			errorResponse(c, http.StatusConflict, err.Error())
		default:
			errorResponse(c, http.StatusBadGateway, err.Error())
		}
		return
	}
	successResponse(c, order)
}

type startRequest struct {
	Symbol string `json:"symbol"`
}

// handleStart starts the scalper from the newest unconsumed filled order of
// the symbol.
func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Symbol == "" {
		req.Symbol = s.settings.Get().Symbol
	}

	order := s.scalper.LatestOrder(req.Symbol)
	if err := s.scalper.Start(c.Request.Context(), order); err != nil {
		switch {
		case errors.Is(err, usecase.ErrNoOrder):
			errorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, usecase.ErrAlreadyRunning):
			errorResponse(c, http.StatusConflict, err.Error())
		default:
			errorResponse(c, http.StatusBadGateway, err.Error())
		}
		return
	}
	successResponse(c, s.scalper.Status())
}

// handleStop stops the scalper. Stopping while idle still frees the order
// guards but is reported as a conflict.
func (s *Server) handleStop(c *gin.Context) {
	wasRunning := s.scalper.Status().Running
	s.scalper.Stop()
	if !wasRunning {
		errorResponse(c, http.StatusConflict, usecase.ErrNotRunning.Error())
		return
	}
	successResponse(c, s.scalper.Status())
}

func (s *Server) handleGetSettings(c *gin.Context) {
	successResponse(c, s.settings.Get())
}

// handleUpdateSettings merges the request body over the current settings, so
// omitted fields keep their values.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	current := s.settings.Get()
	next := current
	if err := c.ShouldBindJSON(&next); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if next.Symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	if next.SellPercent <= 0 || next.ReverseDownPercent <= 0 {
		errorResponse(c, http.StatusBadRequest, "sell_percent and reverse_down_percent must be positive")
		return
	}
	if next.PriceBias < 0 || next.WaitTimeCount < 0 {
		errorResponse(c, http.StatusBadRequest, "price_bias and wait_time_count must not be negative")
		return
	}

	if next.Symbol != current.Symbol {
		// Changes the symbol and stops a running scalper.
		s.scalper.SelectSymbol(next.Symbol)
	}
	s.settings.Set(next)

	if s.OnSettingsSaved != nil {
		if err := s.OnSettingsSaved(next); err != nil {
			s.logger.Error("Failed to save settings", zap.Error(err))
			errorResponse(c, http.StatusInternalServerError, err.Error())
			return
		}
	}
	successResponse(c, next)
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errorResponse(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	pairs, err := s.journal.ListOrderPairs(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, pairs)
}

func (s *Server) handleNotifications(c *gin.Context) {
	successResponse(c, s.notices.Recent())
}
