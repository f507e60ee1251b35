package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewRouter builds the fiber application. Everything under /api/v1 requires
// a bearer JWT; /healthz is open. A positive requestTimeout bounds every
// request's context so no store access can block past it.
func NewRouter(h *Handler, jwtSecret []byte, requestTimeout time.Duration, log *slog.Logger) *fiber.App {
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(log))
	if requestTimeout > 0 {
		app.Use(boundRequest(requestTimeout))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", Protected(jwtSecret))
	tenants := api.Group("/tenants/:tenantID")

	tenants.Get("/providers/:providerID/availability", h.listAvailability)

	tenants.Post("/providers/:providerID/recurrences", h.createRecurrence)
	tenants.Get("/providers/:providerID/recurrences", h.listRecurrences)
	tenants.Put("/providers/:providerID/recurrences/:id", h.updateRecurrence)
	tenants.Delete("/providers/:providerID/recurrences/:id", h.deactivateRecurrence)

	tenants.Post("/appointments", h.bookAppointment)
	tenants.Get("/appointments", h.listAppointments)
	tenants.Get("/appointments/:id", h.getAppointment)
	tenants.Post("/appointments/:id/confirm", h.confirmAppointment)
	tenants.Post("/appointments/:id/reject", h.rejectAppointment)
	tenants.Post("/appointments/:id/cancel", h.cancelAppointment)
	tenants.Post("/appointments/:id/complete", h.completeAppointment)

	tenants.Post("/blocks", h.createBlock)
	tenants.Get("/blocks", h.listBlocks)
	tenants.Put("/blocks/:id", h.updateBlock)
	tenants.Delete("/blocks/:id", h.deleteBlock)

	return app
}

// boundRequest deadlines the request context. Repositories map the expiry
// to store.ErrUnavailable, which the handlers surface as 503.
func boundRequest(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info(
			"request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}
}
