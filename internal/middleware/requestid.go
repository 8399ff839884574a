package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/stellar-commitment/commitdash/internal/journal"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID ensures each request has a stable identifier, exposes it in
// Locals and on the user context so journaled invocations can be traced
// back to the dashboard action that caused them.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)
		c.Locals(RequestIDHeader, reqID)
		c.SetUserContext(journal.WithRequestID(c.UserContext(), reqID))

		return c.Next()
	}
}
