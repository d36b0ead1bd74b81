package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/fulfillment"
	"github.com/bundlehub/bundlehub/internal/order"
)

// RegisterAdminRoutes wires order administration and the fulfillment float
// proxy. The caller mounts these behind the auth and admin middlewares.
func RegisterAdminRoutes(r fiber.Router, orders *order.Handler, fulfiller fulfillment.Client) {
	r.Get("/orders", orders.ListAll)
	r.Patch("/orders/:orderId/status", orders.UpdateStatus)
	r.Get("/balance", func(c *fiber.Ctx) error {
		balance, err := fulfiller.AccountBalance(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusBadGateway, "fulfillment provider unavailable")
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"balance_pesewas": balance, "currency": "GHS"})
	})
}
