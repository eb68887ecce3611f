package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"

	"github.com/giovannifil-64/DeVisu/internal/domain"
)

// Recover turns a panic in a handler into the same 500 body ErrorHandler
// writes for domain.ErrInternal.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("path", c.Path()),
					slog.String("method", c.Method()),
					slog.String("stack", string(debug.Stack())),
				)

				err = c.Status(domain.ErrInternal.StatusCode).JSON(fiber.Map{
					"error": fiber.Map{
						"code":    domain.ErrInternal.Code,
						"message": domain.ErrInternal.Message,
					},
				})
			}
		}()
		return c.Next()
	}
}
