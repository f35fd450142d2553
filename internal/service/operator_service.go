package service

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-engine/internal/auth"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// OperatorService provisions operator accounts. Login and token issuance live
// in the external credential service; this side only stores the account row
// the tokens reference.
type OperatorService struct {
	store      *repository.Store
	bcryptCost int
}

// NewOperatorService constructs the service.
func NewOperatorService(store *repository.Store, bcryptCost int) *OperatorService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &OperatorService{store: store, bcryptCost: bcryptCost}
}

// OperatorCreateInput describes a new operator account.
type OperatorCreateInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.GlobalRole
}

// Provision creates an operator account. Admin only.
func (s *OperatorService) Provision(ctx context.Context, actor *domain.Operator, input OperatorCreateInput) (*domain.Operator, error) {
	if !actor.IsAdmin() {
		return nil, util.NewForbidden("only an admin may provision operators")
	}
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return nil, util.NewValidationError("name and email are required", nil)
	}
	if len(input.Password) < 8 {
		return nil, util.NewValidationError("password must be at least 8 characters", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.RoleAgent
	}
	switch role {
	case domain.RoleAdmin, domain.RoleSupervisor, domain.RoleAgent:
	default:
		return nil, util.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	operator := &domain.Operator{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.store.Operators.Create(ctx, operator); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, util.NewConflict("email already registered", nil)
		}
		return nil, err
	}
	operator.PasswordHash = ""
	return operator, nil
}
