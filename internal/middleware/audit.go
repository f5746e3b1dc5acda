package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/tontine/internal/auth"
	"github.com/congo-pay/tontine/internal/namespace"
)

// Audit emits structured logs for each request/response lifecycle event,
// tagged with the caller's namespace once authenticated.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if ns, ok := c.Locals(auth.LocalNamespace).(namespace.Namespace); ok && !ns.IsZero() {
			attrs = append(attrs, slog.String("namespace", ns.String()))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			if status >= 500 {
				logger.Error("request completed", attrs...)
			} else {
				logger.Warn("request completed", attrs...)
			}
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
