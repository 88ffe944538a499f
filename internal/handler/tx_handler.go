package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"SupplyLedger/internal/models"
)

func (h *Handler) Transfer(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.Transfer(c.Request.Context(), req.From, req.To, req.Amount)
	writeResult(c, http.StatusOK, rec, err)
}

func (h *Handler) Payment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.ProcessPayment(c.Request.Context(), req.From, req.To, req.Amount, req.ProductID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) MintAsset(c *gin.Context) {
	var req models.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := h.svc.MintAsset(c.Request.Context(), req.ProductID, req.Owner, req.Metadata)
	writeResult(c, http.StatusCreated, asset, err)
}

func (h *Handler) TransferAsset(c *gin.Context) {
	var req models.OwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := h.svc.TransferAssetOwnership(c.Request.Context(), c.Param("id"), req.NewOwner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

func (h *Handler) UpdateAssetMetadata(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	asset, err := h.svc.UpdateAssetMetadata(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}
