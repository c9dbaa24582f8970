package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradeflow/internal/cancel"
	"tradeflow/internal/executor"
	"tradeflow/internal/models"
)

// DispatchHandler accepts trading decisions and fans them out. It is the
// only write surface of the API; everything else is ledger inspection.
type DispatchHandler struct {
	Coordinator *executor.Coordinator
	Cancel      *cancel.Service
	Logger      *zap.Logger
}

func (h *DispatchHandler) Register(r *gin.Engine) {
	group := r.Group("/api")
	group.POST("/dispatch", h.dispatch)
	group.POST("/cancel", h.cancelAll)
}

func (h *DispatchHandler) dispatch(c *gin.Context) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	var decision executor.Decision
	if err := c.ShouldBindJSON(&decision); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	results, err := h.Coordinator.Execute(c.Request.Context(), &decision)
	if err != nil {
		if errors.Is(err, executor.ErrInvalidDecision) {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Error("dispatch failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	Ok(c, results, map[string]any{
		"targets":   len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

type cancelRequest struct {
	StrategyAccountID uint64 `json:"strategy_account_id" binding:"required"`
	Symbol            string `json:"symbol"`
}

// cancelAll cancels one strategy-account's orders, optionally narrowed to a
// symbol. The same path is reachable through /api/dispatch with the
// CANCEL_ALL order type; this endpoint is the single-account shortcut.
func (h *DispatchHandler) cancelAll(c *gin.Context) {
	if h.Cancel == nil {
		Error(c, http.StatusInternalServerError, "cancel service unavailable", nil)
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	result, err := h.Cancel.CancelAll(c.Request.Context(), req.StrategyAccountID, req.Symbol)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("cancel failed",
				zap.Uint64("strategy_account_id", req.StrategyAccountID),
				zap.String("symbol", req.Symbol),
				zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	status := models.OrderTypeCancelAll
	if req.Symbol != "" {
		status = models.OrderTypeCancelSymbol
	}
	Ok(c, result, map[string]any{"mode": status})
}
