package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"SupplyLedger/internal/models"
	"SupplyLedger/internal/recorder"
)

// Transactions lists history, most recent first.
// Query: wallet (name or address), kind, limit.
func (h *Handler) Transactions(c *gin.Context) {
	f := recorder.Filter{
		Wallet: c.Query("wallet"),
		Kind:   c.Query("kind"),
		Limit:  50,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Code: "invalid_request", Message: "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}
	entries, err := h.svc.TransactionHistory(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetAsset(c *gin.Context) {
	asset, err := h.svc.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

func (h *Handler) ListAssets(c *gin.Context) {
	assets, err := h.svc.AssetsByOwner(c.Request.Context(), c.Query("owner"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}
