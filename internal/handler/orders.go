package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeflow/internal/repository"
)

// OrdersHandler exposes read-only views over the order ledger: what is live
// at the exchange, what is queued behind the open-order cap, and what has
// executed.
type OrdersHandler struct {
	Repo repository.Repository
}

func (h *OrdersHandler) Register(r *gin.Engine) {
	group := r.Group("/api")
	group.GET("/orders/open", h.listOpen)
	group.GET("/orders/pending", h.listPending)
	group.GET("/trades", h.listTrades)
	group.GET("/positions", h.listPositions)
}

func (h *OrdersHandler) listOpen(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	orders, err := h.Repo.ListOpenOrders(c.Request.Context(), repository.ListOpenOrdersParams{
		StrategyAccountID: uint64QueryPtr(c, "strategy_account_id"),
		Symbol:            strQueryPtr(c, "symbol"),
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, orders, pageMeta(limit, offset, len(orders)))
}

func (h *OrdersHandler) listPending(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	orders, err := h.Repo.ListPendingOrders(c.Request.Context(), repository.ListPendingOrdersParams{
		StrategyAccountID: uint64QueryPtr(c, "strategy_account_id"),
		Symbol:            strQueryPtr(c, "symbol"),
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, orders, pageMeta(limit, offset, len(orders)))
}

func (h *OrdersHandler) listTrades(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	trades, err := h.Repo.ListTrades(c.Request.Context(), repository.ListTradesParams{
		StrategyAccountID: uint64QueryPtr(c, "strategy_account_id"),
		Symbol:            strQueryPtr(c, "symbol"),
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, trades, pageMeta(limit, offset, len(trades)))
}

func (h *OrdersHandler) listPositions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repository unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	positions, err := h.Repo.ListPositions(c.Request.Context(), repository.ListPositionsParams{
		StrategyAccountID: uint64QueryPtr(c, "strategy_account_id"),
		Status:            strQueryPtr(c, "status"),
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, positions, pageMeta(limit, offset, len(positions)))
}
