package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stellar-commitment/commitdash/internal/commitment"
	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/journal"
	"github.com/stellar-commitment/commitdash/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
	Service *commitment.Service
	Journal journal.Journal
	// Chain loads the chain configuration for one request. Defaults to
	// config.LoadChain so environment edits apply without a restart.
	Chain func() (config.Chain, error)
	// AccessLog enables fiber's plain access line on stdout.
	AccessLog bool
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Service == nil {
		return errors.New("routes: commitment service is required")
	}
	if d.Logger == nil {
		return errors.New("routes: logger is required")
	}
	if d.Chain == nil {
		d.Chain = config.LoadChain
	}
	if !d.Cfg.IsDev() && d.Cfg.AdminTokenHash == "" {
		d.Logger.Warn("admin routes are unguarded", slog.String("env", d.Cfg.AppEnv))
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDHeader).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	h := &handler{svc: d.Service, chain: d.Chain}
	writes := []fiber.Handler{
		middleware.WriteThrottle(d.Cache, d.Cfg.WriteRatePerMin),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	}
	admin := append([]fiber.Handler{middleware.AdminGuard(d.Cfg.AdminTokenHash)}, writes...)

	registerCommitmentRoutes(api, h, writes, admin)
	registerDiagnosticRoutes(api, h, d.Journal)

	return nil
}

// ErrorHandler renders transport-level errors (unknown route, throttled,
// unauthorized) in the same shape as operation failures.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		msg := err.Error()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else if logger != nil {
			logger.Error("unhandled request error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"ok": false, "error": msg, "stderr": nil})
	}
}

// methodNotAllowed answers every method a route does not register.
func methodNotAllowed(allowed ...string) fiber.Handler {
	header := strings.Join(allowed, ", ")
	msg := fmt.Sprintf("Use %s", strings.Join(allowed, " or "))
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAllow, header)
		return c.Status(http.StatusMethodNotAllowed).JSON(fiber.Map{
			"ok":    false,
			"error": msg,
		})
	}
}
