package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/wallet"
)

// RegisterWalletRoutes wires the authenticated wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallet/topup/initialize", h.InitializeTopUp)
	r.Post("/wallet/topup/verify", h.VerifyTopUp)
	r.Get("/wallet/balance", h.Balance)
	r.Get("/wallet/history", h.History)
}
