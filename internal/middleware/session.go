package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/auth"
	"github.com/congo-pay/tontine/internal/namespace"
	"github.com/congo-pay/tontine/internal/session"
)

const localSession = "session"

// Session opens (or reuses) the state store of the authenticated caller. It
// must run after JWTAuth.
func Session(registry *session.Registry, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ns, _ := c.Locals(auth.LocalNamespace).(namespace.Namespace)
		s, err := registry.Open(c.UserContext(), ns)
		if err != nil {
			if errors.Is(err, session.ErrNoNamespace) {
				return fiber.NewError(http.StatusUnauthorized, "no user namespace")
			}
			logger.Error("open session failed", slog.String("namespace", ns.String()), slog.Any("error", err))
			return fiber.NewError(http.StatusServiceUnavailable, "state store unavailable")
		}
		c.Locals(localSession, s)
		return c.Next()
	}
}

// SessionFrom returns the session attached by Session, or nil.
func SessionFrom(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(localSession).(*session.Session)
	return s
}
