package handler

import (
	"github.com/gin-gonic/gin"

	"SupplyLedger/internal/middleware"
	"SupplyLedger/internal/services"
)

type Handler struct {
	svc *services.WalletService
}

func New(svc *services.WalletService) *Handler {
	return &Handler{svc: svc}
}

func RegisterRoutes(r *gin.Engine, h *Handler, health *Health) {
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	api := r.Group("/api/v1")
	{
		api.GET("/wallets", h.ListWallets)
		api.POST("/wallets", h.CreateWallet)
		api.GET("/wallets/summary", h.WalletSummary)
		api.POST("/wallets/auto-fund", middleware.LocalOnly(), h.AutoFund)
		api.GET("/wallets/:name", h.WalletDetails)
		api.GET("/wallets/:name/balance", h.Balance)
		api.POST("/wallets/:name/fund", middleware.LocalOnly(), h.Fund)

		api.POST("/transfers", h.Transfer)
		api.POST("/payments", h.Payment)
		api.GET("/transactions", h.Transactions)

		api.POST("/assets", h.MintAsset)
		api.GET("/assets", h.ListAssets)
		api.GET("/assets/:id", h.GetAsset)
		api.POST("/assets/:id/transfer", h.TransferAsset)
		api.PATCH("/assets/:id/metadata", h.UpdateAssetMetadata)

		api.GET("/roles/:role/:id", h.RoleWallet)
	}
}
