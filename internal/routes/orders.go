package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/order"
)

// RegisterOrderRoutes wires the authenticated order endpoints.
func RegisterOrderRoutes(r fiber.Router, h *order.Handler) {
	r.Post("/orders", h.Place)
	r.Get("/orders", h.ListMine)
	r.Post("/orders/sync", h.Sync)
}
