package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/catalog"
)

// RegisterCatalogRoutes wires the public bundle listing.
func RegisterCatalogRoutes(r fiber.Router, bundles *catalog.Catalog) {
	r.Get("/bundles", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(bundles.List())
	})
	r.Get("/bundles/:bundleId", func(c *fiber.Ctx) error {
		b, err := bundles.Get(c.Params("bundleId"))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(b)
	})
}
