package order

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/catalog"
	"github.com/bundlehub/bundlehub/internal/middleware"
)

// Handler exposes order endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an order HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type placeOrderRequest struct {
	BundleID    string `json:"bundle_id"`
	Beneficiary string `json:"beneficiary"`
}

type orderResponse struct {
	ID           string    `json:"id"`
	BundleID     string    `json:"bundle_id,omitempty"`
	Network      string    `json:"network,omitempty"`
	Title        string    `json:"title"`
	Beneficiary  string    `json:"beneficiary,omitempty"`
	PricePesewas int64     `json:"price_pesewas"`
	Status       string    `json:"status"`
	Paid         bool      `json:"paid"`
	RemoteID     string    `json:"remote_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Place creates an order for the authenticated user.
func (h *Handler) Place(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	o, err := h.service.PlaceOrder(c.UserContext(), u, req.BundleID, req.Beneficiary)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toOrderResponse(o))
}

// ListMine returns the authenticated user's purchase history.
func (h *Handler) ListMine(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	orders, err := h.service.ListByUser(c.UserContext(), u.Email)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toOrderResponses(orders))
}

type syncRequest struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	AmountPesewas int64  `json:"amount_pesewas"`
	Status        string `json:"status"`
}

// Sync reconciles a client-submitted transaction record. Duplicate ids are
// acknowledged without storing a second copy.
func (h *Handler) Sync(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	inserted, err := h.service.SyncExternal(c.UserContext(), ExternalTransaction{
		ID:            req.ID,
		UserEmail:     u.Email,
		Title:         req.Title,
		AmountPesewas: req.AmountPesewas,
		Status:        req.Status,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	message := "transaction synced"
	if !inserted {
		message = "transaction already exists"
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "message": message})
}

// ListAll returns every order for admin review.
func (h *Handler) ListAll(c *fiber.Ctx) error {
	orders, err := h.service.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toOrderResponses(orders))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus applies an admin status transition.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	orderID := c.Params("orderId")
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.UpdateStatus(c.UserContext(), orderID, req.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": orderID, "status": req.Status})
}

func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		BundleID:     o.BundleID,
		Network:      o.Network,
		Title:        o.Title,
		Beneficiary:  o.Beneficiary,
		PricePesewas: o.PricePesewas,
		Status:       o.Status,
		Paid:         o.Paid,
		RemoteID:     o.RemoteID,
		CreatedAt:    o.CreatedAt,
	}
}

func toOrderResponses(orders []Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}
