package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bundlehub/bundlehub/internal/auth"
	"github.com/bundlehub/bundlehub/internal/catalog"
	"github.com/bundlehub/bundlehub/internal/config"
	"github.com/bundlehub/bundlehub/internal/fulfillment"
	"github.com/bundlehub/bundlehub/internal/gateway"
	"github.com/bundlehub/bundlehub/internal/ledger"
	"github.com/bundlehub/bundlehub/internal/middleware"
	"github.com/bundlehub/bundlehub/internal/notification"
	"github.com/bundlehub/bundlehub/internal/order"
	"github.com/bundlehub/bundlehub/internal/ratelimit"
	"github.com/bundlehub/bundlehub/internal/user"
	"github.com/bundlehub/bundlehub/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Storage backends: Postgres in deployment, in-memory in dev.
	var users user.Repository
	var orders order.Repository
	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		users = user.NewPostgresRepository(d.DB)
		orders = order.NewPostgresRepository(d.DB)
		ledgerBackend = ledger.NewPostgres(d.DB)
	} else {
		users = user.NewMemoryRepository()
		orders = order.NewMemoryRepository()
		ledgerBackend = ledger.NewInMemory(users)
	}

	var limiter ratelimit.Limiter
	if d.Cache != nil {
		limiter = ratelimit.NewRedisLimiter(d.Cache, d.Cfg.LoginMaxAttempts, d.Cfg.LoginWindow)
	} else {
		limiter = ratelimit.NewMemoryLimiter(d.Cfg.LoginMaxAttempts, d.Cfg.LoginWindow)
	}

	// External collaborators: real clients when configured, stubs in dev.
	var gw gateway.Gateway
	if d.Cfg.PaystackSecretKey != "" {
		gw = gateway.NewPaystackClient(d.Cfg.PaystackSecretKey, d.Cfg.PaystackBaseURL, d.Cfg.UpstreamTimeout)
	} else {
		gw = gateway.NewStaticGateway()
	}
	var fulfiller fulfillment.Client
	if d.Cfg.FulfillmentBaseURL != "" {
		fulfiller = fulfillment.NewHTTPClient(d.Cfg.FulfillmentAPIKey, d.Cfg.FulfillmentBaseURL, d.Cfg.UpstreamTimeout)
	} else {
		fulfiller = fulfillment.StaticClient{BalancePesewas: 100_000}
	}

	bundles := catalog.NewStatic()
	notifier := notification.NewLoggerNotifier(d.Logger)

	authSvc := auth.NewService(users, limiter, d.Cfg.JWTSecret, d.Cfg.TokenTTL, d.Cfg.AdminEmail)
	walletSvc := wallet.NewService(gw, ledgerBackend, notifier, d.Logger)
	orderSvc := order.NewService(orders, bundles, ledgerBackend, fulfiller, notifier, d.Logger)

	authHandler := auth.NewHandler(authSvc, d.Cfg.LoginWindow)
	walletHandler := wallet.NewHandler(walletSvc, d.Cfg.PaystackSecretKey)
	orderHandler := order.NewHandler(orderSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAuthRoutes(api, authHandler)
	RegisterCatalogRoutes(api, bundles)
	// The webhook authenticates by body signature, not bearer token.
	api.Post("/wallet/webhook", walletHandler.Webhook)

	// Protected routes
	authmw := middleware.RequireAuth(authSvc)
	protected := api.Group("", authmw)
	protected.Get("/me", func(c *fiber.Ctx) error {
		u, ok := middleware.CurrentUser(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.JSON(fiber.Map{
			"email":           u.Email,
			"name":            u.Name,
			"role":            u.Role,
			"balance_pesewas": u.BalancePesewas,
			"created_at":      u.CreatedAt,
		})
	})
	protected.Post("/auth/logout-all", func(c *fiber.Ctx) error {
		u, ok := middleware.CurrentUser(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		if err := authSvc.LogoutAll(c.UserContext(), u.Email); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
	})
	RegisterWalletRoutes(protected, walletHandler)
	RegisterOrderRoutes(protected, orderHandler)

	// Admin routes
	admin := protected.Group("/admin", middleware.RequireAdmin())
	RegisterAdminRoutes(admin, orderHandler, fulfiller)

	return nil
}
