package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"mentora/backend/internal/domain"
	"mentora/backend/internal/service/scheduling"
)

// listAvailability returns the provider's open slots for [from, to).
func (h *Handler) listAvailability(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if from.IsZero() || to.IsZero() {
		return badRequest(c, "from and to are required")
	}

	slots, err := h.svc.ListAvailability(c.UserContext(), c.Params("tenantID"), c.Params("providerID"), from, to)
	if err != nil {
		return h.respondError(c, err)
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	return c.JSON(fiber.Map{"slots": slots})
}

type recurrenceRequest struct {
	ServiceKind string  `json:"service_kind"`
	Weekday     int16   `json:"weekday"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	SlotMinutes int16   `json:"slot_duration_minutes"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

func (r recurrenceRequest) toInput(tenantID, providerID string) (scheduling.RecurrenceInput, error) {
	startMinute, err := domain.ParseMinuteOfDay(r.StartTime)
	if err != nil {
		return scheduling.RecurrenceInput{}, err
	}
	endMinute, err := domain.ParseMinuteOfDay(r.EndTime)
	if err != nil {
		return scheduling.RecurrenceInput{}, err
	}

	in := scheduling.RecurrenceInput{
		TenantID:    tenantID,
		ProviderID:  providerID,
		ServiceKind: domain.ServiceKind(r.ServiceKind),
		Weekday:     r.Weekday,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		SlotMinutes: r.SlotMinutes,
	}
	if r.StartDate != "" {
		start, err := time.Parse(dateLayout, r.StartDate)
		if err != nil {
			return scheduling.RecurrenceInput{}, err
		}
		in.StartDate = start
	}
	if r.EndDate != nil {
		end, err := time.Parse(dateLayout, *r.EndDate)
		if err != nil {
			return scheduling.RecurrenceInput{}, err
		}
		in.EndDate = &end
	}
	return in, nil
}

func (h *Handler) createRecurrence(c *fiber.Ctx) error {
	var req recurrenceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	in, err := req.toInput(c.Params("tenantID"), c.Params("providerID"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.svc.CreateRecurrence(c.UserContext(), actorID(c), in)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(viewRecurrence(rule))
}

func (h *Handler) updateRecurrence(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req recurrenceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	in, err := req.toInput(c.Params("tenantID"), c.Params("providerID"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	rule, err := h.svc.UpdateRecurrence(c.UserContext(), actorID(c), c.Params("tenantID"), id, in)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(viewRecurrence(rule))
}

func (h *Handler) deactivateRecurrence(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.svc.DeactivateRecurrence(c.UserContext(), actorID(c), c.Params("tenantID"), id); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listRecurrences(c *fiber.Ctx) error {
	rules, err := h.svc.ListRecurrences(c.UserContext(), c.Params("tenantID"), c.Params("providerID"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"rules": viewRecurrences(rules)})
}

type blockRequest struct {
	ProviderID *string   `json:"provider_id"`
	Kind       string    `json:"kind"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Reason     string    `json:"reason"`
}

func (r blockRequest) toInput(tenantID string) scheduling.BlockInput {
	return scheduling.BlockInput{
		TenantID:   tenantID,
		ProviderID: r.ProviderID,
		Kind:       domain.BlockKind(r.Kind),
		StartAt:    r.StartAt,
		EndAt:      r.EndAt,
		Reason:     r.Reason,
	}
}

func (h *Handler) createBlock(c *fiber.Ctx) error {
	var req blockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.svc.CreateBlock(c.UserContext(), actorID(c), req.toInput(c.Params("tenantID")))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"block":                  viewBlock(res.Block),
		"cancelled_appointments": res.Cancelled,
	})
}

func (h *Handler) updateBlock(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req blockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.svc.UpdateBlock(c.UserContext(), actorID(c), c.Params("tenantID"), id, req.toInput(c.Params("tenantID")))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"block":                  viewBlock(res.Block),
		"cancelled_appointments": res.Cancelled,
	})
}

func (h *Handler) deleteBlock(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.svc.DeleteBlock(c.UserContext(), actorID(c), c.Params("tenantID"), id); err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) listBlocks(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return badRequest(c, err.Error())
	}

	blocks, err := h.svc.ListBlocks(c.UserContext(), c.Params("tenantID"), from, to)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"blocks": viewBlocks(blocks)})
}
