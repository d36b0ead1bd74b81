package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/auth"
)

// RegisterAuthRoutes wires the public authentication endpoints. Login
// rate-limiting lives inside the auth service, keyed by email.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	group := r.Group("/auth")
	group.Post("/signup", h.SignUp)
	group.Post("/login", h.Login)
	group.Post("/federated", h.Federated)
}
