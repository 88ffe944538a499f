package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"SupplyLedger/internal/models"
)

func (h *Handler) ListWallets(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.ListWallets())
}

func (h *Handler) CreateWallet(c *gin.Context) {
	var req models.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	info, err := h.svc.CreateWallet(req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handler) WalletSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.WalletSummary(c.Request.Context()))
}

func (h *Handler) WalletDetails(c *gin.Context) {
	d, err := h.svc.WalletDetails(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) Balance(c *gin.Context) {
	name := c.Param("name")
	bal, err := h.svc.Balance(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	info, err := h.svc.Wallet(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.BalanceResponse{Wallet: name, PublicKey: info.PublicKey, SolBalance: bal})
}

// Fund is a devnet airdrop; routed behind LocalOnly.
func (h *Handler) Fund(c *gin.Context) {
	var req models.FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.Fund(c.Request.Context(), c.Param("name"), req.Amount)
	writeResult(c, http.StatusOK, rec, err)
}

func (h *Handler) AutoFund(c *gin.Context) {
	var req models.AutoFundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.svc.AutoFund(c.Request.Context(), req.MinBalance, req.Amounts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) RoleWallet(c *gin.Context) {
	info, err := h.svc.RoleWallet(c.Param("role"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
