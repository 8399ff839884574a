package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. 5xx responses are
// logged at warn since most of them carry a failed chain invocation.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		requestID, _ := c.Locals(RequestIDHeader).(string)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		switch {
		case err != nil:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
		case status >= fiber.StatusInternalServerError:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
