package auth

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bundlehub/bundlehub/internal/user"
)

// Handler exposes the public authentication endpoints.
type Handler struct {
	svc         *Service
	loginWindow time.Duration
}

// NewHandler constructs an auth HTTP handler. The login window feeds the
// Retry-After hint on rate-limited responses.
func NewHandler(svc *Service, loginWindow time.Duration) *Handler {
	return &Handler{svc: svc, loginWindow: loginWindow}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedRequest struct {
	Assertion string `json:"assertion"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	BalancePesewas int64  `json:"balance_pesewas"`
}

// SignUp registers a new account.
func (h *Handler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.SignUp(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toSessionResponse(session))
}

// Login authenticates stored credentials.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(h.loginWindow.Seconds())))
			return fiber.NewError(http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrInvalidCredentials):
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(toSessionResponse(session))
}

// Federated signs a user in from an external identity assertion.
func (h *Handler) Federated(c *fiber.Ctx) error {
	var req federatedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.FederatedLogin(c.UserContext(), req.Assertion)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "invalid identity assertion")
	}
	return c.Status(http.StatusOK).JSON(toSessionResponse(session))
}

func toSessionResponse(s Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      toUserResponse(s.User),
	}
}

func toUserResponse(u user.User) userResponse {
	return userResponse{
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		BalancePesewas: u.BalancePesewas,
	}
}
