package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

type StrategyAccountHandler struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (h *StrategyAccountHandler) Register(r *gin.Engine) {
	group := r.Group("/api/accounts")
	group.GET("", h.list)
	group.POST("", h.upsert)
	group.DELETE("/:id", h.remove)
}

func (h *StrategyAccountHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	accounts, err := h.Repo.ListActiveStrategyAccounts(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, accounts, map[string]any{"count": len(accounts)})
}

type upsertAccountRequest struct {
	ID                 uint64          `json:"id"`
	StrategyID         uint64          `json:"strategy_id" binding:"required"`
	Account            string          `json:"account" binding:"required"`
	Exchange           string          `json:"exchange" binding:"required"`
	MarketType         string          `json:"market_type"`
	Leverage           int             `json:"leverage"`
	CapitalWeight      decimal.Decimal `json:"capital_weight"`
	AllocatedCapital   decimal.Decimal `json:"allocated_capital"`
	MaxSymbols         int             `json:"max_symbols"`
	IsActive           *bool           `json:"is_active"`
	PrecisionOverrides json.RawMessage `json:"precision_overrides"`
}

func (h *StrategyAccountHandler) upsert(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	var req upsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	marketType := strings.ToLower(strings.TrimSpace(req.MarketType))
	if marketType == "" {
		marketType = models.MarketTypeSpot
	}
	if marketType != models.MarketTypeSpot && marketType != models.MarketTypeFutures {
		Error(c, http.StatusBadRequest, "market_type must be spot or futures", nil)
		return
	}
	if req.Leverage < 1 {
		req.Leverage = 1
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	account := &models.StrategyAccount{
		ID:               req.ID,
		StrategyID:       req.StrategyID,
		Account:          strings.TrimSpace(req.Account),
		Exchange:         strings.ToLower(strings.TrimSpace(req.Exchange)),
		MarketType:       marketType,
		Leverage:         req.Leverage,
		CapitalWeight:    req.CapitalWeight,
		AllocatedCapital: req.AllocatedCapital,
		MaxSymbols:       req.MaxSymbols,
		IsActive:         active,
	}
	if len(req.PrecisionOverrides) > 0 {
		account.PrecisionOverrides = datatypes.JSON(req.PrecisionOverrides)
	}
	if err := h.Repo.UpsertStrategyAccount(c.Request.Context(), account); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("strategy account upsert failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Created(c, account)
}

func (h *StrategyAccountHandler) remove(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid account id", nil)
		return
	}
	if err := h.Repo.DeleteStrategyAccount(c.Request.Context(), id); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"deleted": id}, nil)
}
