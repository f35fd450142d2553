package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// AuditHandler exposes the read side of the action log.
type AuditHandler struct {
	audits *service.AuditService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(audits *service.AuditService) *AuditHandler {
	return &AuditHandler{audits: audits}
}

// List GET /api/audit.
func (h *AuditHandler) List(c *fiber.Ctx) error {
	actor, err := requireOperator(c)
	if err != nil {
		return err
	}

	filter := repository.AuditFilter{
		TicketID:     queryID(c, "ticket_id"),
		OperatorID:   queryID(c, "operator_id"),
		DepartmentID: queryID(c, "department_id"),
		From:         parseTime(c.Query("from")),
		To:           parseTime(c.Query("to")),
		Limit:        c.QueryInt("limit"),
		Offset:       c.QueryInt("offset"),
	}
	if action := c.Query("action"); action != "" {
		filter.Action = &action
	}

	entries, err := h.audits.List(c.Context(), actor, filter)
	if err != nil {
		return err
	}

	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, dto.AuditEntryResponse{
			ID:             e.ID,
			TicketID:       e.TicketID,
			OperatorID:     e.OperatorID,
			ExternalUserID: e.ExternalUserID,
			Action:         e.Action,
			OldValue:       e.OldValue,
			NewValue:       e.NewValue,
			CreatedAt:      e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

func queryID(c *fiber.Ctx, name string) *int64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}
