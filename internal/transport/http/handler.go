package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mentora/backend/internal/auth"
	"mentora/backend/internal/domain"
	"mentora/backend/internal/service/scheduling"
	"mentora/backend/internal/store"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *scheduling.Service
	log *slog.Logger
}

func NewHandler(svc *scheduling.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc: svc,
		log: log.With(slog.String("component", "transport.http")),
	}
}

// respondError maps the service error taxonomy onto HTTP statuses. Unknown
// errors are logged and reported as a bare 500.
func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	var (
		verr *scheduling.ValidationError
		aerr *auth.AuthorizationError
		serr *domain.StateError
	)
	switch {
	case errors.As(err, &verr):
		return respond(c, fiber.StatusBadRequest, verr.Error())
	case errors.As(err, &aerr):
		return respond(c, fiber.StatusForbidden, aerr.Error())
	case errors.Is(err, store.ErrNotFound):
		return respond(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		return respond(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &serr):
		return respond(c, fiber.StatusConflict, serr.Error())
	case errors.Is(err, store.ErrUnavailable):
		return respond(c, fiber.StatusServiceUnavailable, "temporarily unavailable")
	default:
		h.log.Error(
			"request failed",
			slog.Any("err", err),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
		)
		return respond(c, fiber.StatusInternalServerError, "internal error")
	}
}

func respond(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return respond(c, fiber.StatusBadRequest, msg)
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, errors.New("invalid " + param)
	}
	return id, nil
}

// parseTimeQuery reads an RFC 3339 timestamp from the query string. A
// missing parameter yields the zero time without error.
func parseTimeQuery(c *fiber.Ctx, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be RFC 3339")
	}
	return t, nil
}
