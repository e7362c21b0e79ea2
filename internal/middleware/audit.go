package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// AuditWriter defines how API request records are persisted.
type AuditWriter interface {
	WriteAPILog(method, path string, status int, durationMS int64, ip, userAgent string) error
}

// AuditMiddleware logs every request to the API log table.
func AuditMiddleware(writer AuditWriter) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data BEFORE handler execution (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		status := c.Response().StatusCode()
		durationMS := time.Since(start).Milliseconds()

		// Write asynchronously — all values are captured, safe to use in goroutine
		go func() {
			if writeErr := writer.WriteAPILog(method, path, status, durationMS, ip, userAgent); writeErr != nil {
				slog.Error("failed to write api log", "error", writeErr)
			}
		}()

		return err
	}
}
