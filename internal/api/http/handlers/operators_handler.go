package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-engine/internal/api/dto"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// OperatorsHandler manages operator provisioning endpoints.
type OperatorsHandler struct {
	operators *service.OperatorService
}

// NewOperatorsHandler constructs handler.
func NewOperatorsHandler(operators *service.OperatorService) *OperatorsHandler {
	return &OperatorsHandler{operators: operators}
}

// Create POST /api/operators. Admin only.
func (h *OperatorsHandler) Create(c *fiber.Ctx) error {
	actor, err := requireOperator(c)
	if err != nil {
		return err
	}
	var req dto.CreateOperatorRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	operator, err := h.operators.Provision(c.Context(), actor, service.OperatorCreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.GlobalRole(strings.ToUpper(req.Role)),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.OperatorResponse{
		ID:        operator.ID,
		Name:      operator.Name,
		Email:     operator.Email,
		Role:      string(operator.Role),
		Active:    operator.Active,
		CreatedAt: operator.CreatedAt,
	}})
}
