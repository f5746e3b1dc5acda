package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, idempotency fiber.Handler) {
	group := r.Group("/wallet")
	group.Get("", h.Summary)
	group.Get("/convert/:currency", h.Convert)
	group.Post("/deposit", chain(idempotency, h.Deposit)...)
	group.Post("/withdraw", chain(idempotency, h.Withdraw)...)
}
