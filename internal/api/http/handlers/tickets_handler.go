package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// TicketsHandler manages operator ticket endpoints.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
	access    *service.AccessService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, access *service.AccessService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, access: access}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Title) == "" || req.PriorityID == 0 {
		return util.NewValidationError("title and priority_id required", nil)
	}

	ticket, err := h.lifecycle.CreateTicket(c.Context(), operator, service.TicketCreateInput{
		Title:        req.Title,
		Description:  req.Description,
		PriorityID:   req.PriorityID,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ticket, messages, err := h.access.GetTicketForOperator(c.Context(), operator, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, messages)})
}

// ChangeStatus PATCH /api/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.lifecycle.ChangeStatus(c.Context(), operator, ticketID, domain.Status(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"id":           ticket.ID,
		"status":       int(ticket.Status),
		"status_label": ticket.Status.Label(),
	}})
}

// ChangePriority PATCH /api/tickets/:id/priority.
func (h *TicketsHandler) ChangePriority(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.lifecycle.ChangePriority(c.Context(), operator, ticketID, req.PriorityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Take POST /api/tickets/:id/take.
func (h *TicketsHandler) Take(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	assignment, err := h.lifecycle.Take(c.Context(), operator, ticketID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// Reassign POST /api/tickets/:id/reassign.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.OperatorID == 0 {
		return util.NewValidationError("operator_id required", nil)
	}

	assignment, err := h.lifecycle.Reassign(c.Context(), operator, ticketID, req.OperatorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// AddMessage POST /api/tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	operator, err := requireOperator(c)
	if err != nil {
		return err
	}
	ticketID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return util.NewValidationError("body required", nil)
	}
	visibility := domain.VisibilityPublic
	if req.Visibility != "" {
		switch domain.Visibility(strings.ToUpper(req.Visibility)) {
		case domain.VisibilityPublic:
		case domain.VisibilityPrivate:
			visibility = domain.VisibilityPrivate
		default:
			return util.NewValidationError("visibility must be PUBLIC or PRIVATE", nil)
		}
	}

	msg, err := h.lifecycle.AddMessage(c.Context(), operator, ticketID, service.MessageInput{
		Subject:    req.Subject,
		Body:       req.Body,
		Visibility: visibility,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

func requireOperator(c *fiber.Ctx) (*domain.Operator, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, util.NewUnauthorized("operator required")
	}
	return principal.Operator, nil
}

func parseID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, util.NewValidationError("invalid id", nil)
	}
	return id, nil
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Status:       int(ticket.Status),
		StatusLabel:  ticket.Status.Label(),
		PriorityID:   ticket.PriorityID,
		DepartmentID: ticket.DepartmentID,
		CreatedAt:    ticket.CreatedAt,
		ResolvedAt:   ticket.ResolvedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, messages []domain.Message) dto.TicketDetailResponse {
	msgs := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, messageResponse(&messages[i]))
	}
	return dto.TicketDetailResponse{
		ID:           ticket.ID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		Status:       int(ticket.Status),
		StatusLabel:  ticket.Status.Label(),
		PriorityID:   ticket.PriorityID,
		DepartmentID: ticket.DepartmentID,
		EmisorID:     ticket.EmisorID,
		RequesterID:  ticket.RequesterID,
		CreatedAt:    ticket.CreatedAt,
		ResolvedAt:   ticket.ResolvedAt,
		Messages:     msgs,
	}
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderKind: string(msg.SenderKind),
		Visibility: string(msg.Visibility),
		Subject:    msg.Subject,
		Body:       msg.Body,
		Channel:    int64(msg.Channel),
		CreatedAt:  msg.CreatedAt,
	}
}

func assignmentResponse(a *domain.TicketAssignment) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		ID:         a.ID,
		TicketID:   a.TicketID,
		OperatorID: a.OperatorID,
		Role:       string(a.Role),
		AssignedAt: a.AssignedAt,
	}
}
