package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/premium"
)

// RegisterPremiumRoutes wires the plan and objective endpoints.
func RegisterPremiumRoutes(r fiber.Router, h *premium.Handler, idempotency fiber.Handler) {
	r.Get("/premium", h.Status)
	r.Post("/premium/activate", chain(idempotency, h.Activate)...)

	objectives := r.Group("/objectives")
	objectives.Get("/:kind/can-create", h.CanCreate)
	objectives.Get("/:kind", h.List)
	objectives.Post("/:kind", chain(idempotency, h.Add)...)
}
