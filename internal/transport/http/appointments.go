package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/service/scheduling"
	"mentora/backend/internal/store"
)

type bookRequest struct {
	ProviderID string    `json:"provider_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Notes      string    `json:"notes"`
}

// bookAppointment books the authenticated actor into a provider's slot.
func (h *Handler) bookAppointment(c *fiber.Ctx) error {
	var req bookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	appt, err := h.svc.Book(c.UserContext(), scheduling.BookInput{
		TenantID:   c.Params("tenantID"),
		ProviderID: req.ProviderID,
		ConsumerID: actorID(c),
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Notes:      req.Notes,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(viewAppointment(appt))
}

func (h *Handler) getAppointment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	appt, err := h.svc.GetAppointment(c.UserContext(), c.Params("tenantID"), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewAppointment(appt))
}

func (h *Handler) listAppointments(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return badRequest(c, err.Error())
	}

	q := store.AppointmentQuery{
		TenantID:   c.Params("tenantID"),
		ProviderID: c.Query("provider_id"),
		ConsumerID: c.Query("consumer_id"),
		From:       from,
		To:         to,
	}
	if status := c.Query("status"); status != "" {
		q.Statuses = []domain.AppointmentStatus{domain.AppointmentStatus(status)}
	}

	appts, err := h.svc.ListAppointments(c.UserContext(), q)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"appointments": viewAppointments(appts)})
}

type confirmRequest struct {
	MeetingLink string `json:"meeting_link"`
}

func (h *Handler) confirmAppointment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req confirmRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	appt, err := h.svc.Confirm(c.UserContext(), c.Params("tenantID"), id, actorID(c), req.MeetingLink)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewAppointment(appt))
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectAppointment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req reasonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	appt, err := h.svc.Reject(c.UserContext(), c.Params("tenantID"), id, actorID(c), req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewAppointment(appt))
}

func (h *Handler) cancelAppointment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req reasonRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	appt, err := h.svc.Cancel(c.UserContext(), c.Params("tenantID"), id, actorID(c), req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewAppointment(appt))
}

func (h *Handler) completeAppointment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	appt, err := h.svc.Complete(c.UserContext(), c.Params("tenantID"), id, actorID(c))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewAppointment(appt))
}
