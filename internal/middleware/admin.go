package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// AdminTokenHeader carries the operator token for admin routes.
const AdminTokenHeader = "X-Admin-Token"

// AdminGuard requires a token matching the bcrypt tokenHash. An empty hash
// disables the guard, which is the default for a local demo.
func AdminGuard(tokenHash string) fiber.Handler {
	hash := []byte(tokenHash)
	return func(c *fiber.Ctx) error {
		if len(hash) == 0 {
			return c.Next()
		}
		token := c.Get(AdminTokenHeader)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+AdminTokenHeader+" header")
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
