package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/gateway"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/middleware"
)

// Handler exposes wallet top-up and balance endpoints.
type Handler struct {
	service       *Service
	webhookSecret string
}

// NewHandler constructs a wallet HTTP handler. The webhook secret is the
// gateway key used to check inbound event signatures.
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{service: service, webhookSecret: webhookSecret}
}

type initializeTopUpRequest struct {
	AmountPesewas int64 `json:"amount_pesewas"`
}

type initializeTopUpResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	AmountPesewas    int64  `json:"amount_pesewas"`
}

// InitializeTopUp starts a hosted checkout for the authenticated user.
func (h *Handler) InitializeTopUp(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req initializeTopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	topup, err := h.service.InitializeTopUp(c.UserContext(), u.Email, req.AmountPesewas)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusBadGateway, "payment gateway unavailable")
	}
	return c.Status(http.StatusCreated).JSON(initializeTopUpResponse{
		AuthorizationURL: topup.AuthorizationURL,
		Reference:        topup.Reference,
		AmountPesewas:    topup.AmountPesewas,
	})
}

type verifyTopUpRequest struct {
	Reference string `json:"reference"`
}

type entryResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Reference     string    `json:"reference,omitempty"`
	OrderID       string    `json:"order_id,omitempty"`
	AmountPesewas int64     `json:"amount_pesewas"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// VerifyTopUp settles a top-up after the client returns from checkout.
// Duplicate confirmations report the original success.
func (h *Handler) VerifyTopUp(c *fiber.Ctx) error {
	var req verifyTopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" {
		return fiber.NewError(http.StatusBadRequest, "reference is required")
	}

	entry, err := h.service.ConfirmTopUp(c.UserContext(), req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAmountMismatch):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrNotConfirmed), errors.Is(err, gateway.ErrVerificationFailed):
			return fiber.NewError(http.StatusPaymentRequired, "payment not confirmed")
		default:
			return fiber.NewError(http.StatusBadGateway, "verification unavailable, retry later")
		}
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Webhook settles gateway-pushed confirmations. The HMAC signature over the
// raw body is checked before anything is parsed.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	if !gateway.ValidSignature(h.webhookSecret, body, c.Get(gateway.SignatureHeader)) {
		return fiber.NewError(http.StatusUnauthorized, "invalid signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fiber.NewError(http.StatusBadRequest, "malformed payload")
	}

	err := h.service.HandleWebhookEvent(c.UserContext(), toWebhookEvent(payload))
	if err != nil {
		if errors.Is(err, ledger.ErrAmountMismatch) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "webhook processing failed")
	}
	return c.SendStatus(http.StatusOK)
}

// Balance reports the authenticated user's wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	balance, err := h.service.Balance(c.UserContext(), u.Email)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"balance_pesewas": balance, "currency": "GHS"})
}

// History lists the authenticated user's ledger entries.
func (h *Handler) History(c *fiber.Ctx) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	entries, err := h.service.History(c.UserContext(), u.Email)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return c.Status(http.StatusOK).JSON(out)
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:            e.ID,
		Kind:          e.Kind,
		Reference:     e.ExternalRef,
		OrderID:       e.OrderID,
		AmountPesewas: e.AmountPesewas,
		Status:        e.Status,
		CreatedAt:     e.CreatedAt,
	}
}

func toWebhookEvent(p webhookPayload) WebhookEvent {
	return WebhookEvent{
		Event:     p.Event,
		Reference: p.Data.Reference,
		Amount:    p.Data.Amount,
		Email:     p.Data.Customer.Email,
	}
}
