package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/auth"
	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/identity"
	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/middleware"
	"github.com/congo-pay/tontine/internal/notification"
	"github.com/congo-pay/tontine/internal/premium"
	"github.com/congo-pay/tontine/internal/session"
	"github.com/congo-pay/tontine/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Store   kvstore.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// session registry so callers can inspect live sessions.
func Setup(app *fiber.App, d Deps) (*session.Registry, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("a user-state store is required")
	}
	if !d.Cfg.IsDev() && d.Cfg.StoreBackend == config.BackendMemory {
		return nil, fmt.Errorf("STORE_BACKEND=memory is not allowed when APP_ENV=%s", d.Cfg.Env)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(d.Metrics.Middleware())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", d.Metrics.Handler())

	// Services and handlers
	var identityRepo identity.Repository
	if d.DB != nil {
		pgRepo := identity.NewPostgresRepository(d.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("identity schema: %w", err)
		}
		identityRepo = pgRepo
	} else {
		identityRepo = identity.NewMemoryRepository()
	}

	registry := session.NewRegistry(d.Store, d.Logger, session.Options{
		Locale:    d.Cfg.DisplayLocale,
		FreeQuota: d.Cfg.FreeQuota,
		IdleTTL:   d.Cfg.SessionIdleTTL,
	})
	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	identityHandler := identity.NewHandler(identitySvc, d.Logger)
	authHandler := auth.NewHandler(identitySvc, authSvc, registry, d.Logger)
	walletHandler := wallet.NewHandler(wallet.NewService(wallet.StaticCollector{}, notifier, d.Metrics, d.Logger))
	premiumHandler := premium.NewHandler(notifier, d.Metrics, d.Logger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts)
	RegisterAuthRoutes(api, authHandler, rateLimiter, jwtmw)

	// Protected routes
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	protected := api.Group("", jwtmw, middleware.Session(registry, d.Logger))
	protected.Get("/me", func(c *fiber.Ctx) error {
		uid, _ := c.Locals(auth.LocalUserID).(string)
		user, err := identityRepo.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(fiber.Map{
			"user_id":       user.ID,
			"country_code":  user.CountryCode,
			"phone":         user.Phone,
			"namespace":     user.Namespace().String(),
			"tier":          user.Tier,
			"device_id":     user.DeviceID,
			"token_version": user.TokenVersion,
			"created_at":    user.CreatedAt,
			"last_login":    user.LastLogin,
		})
	})
	RegisterWalletRoutes(protected, walletHandler, idempotency)
	RegisterPremiumRoutes(protected, premiumHandler, idempotency)

	return registry, nil
}

// chain prepends mw to h when mw is set.
func chain(mw fiber.Handler, h fiber.Handler) []fiber.Handler {
	if mw == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{mw, h}
}
