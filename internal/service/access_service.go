package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// AccessService decides read/write eligibility for operators against tickets.
// Both the HTTP surface and the email pipeline consult the same rules.
type AccessService struct {
	store *repository.Store
}

// NewAccessService constructs the service.
func NewAccessService(store *repository.Store) *AccessService {
	return &AccessService{store: store}
}

// CanView reports whether the operator may see the ticket.
//
// Precedence: admin; emisor; current owner; supervisory membership in the
// ticket's department or in a department of the owner or emisor; and for
// unclaimed tickets, any active membership in the ticket's department so the
// ticket can be discovered and claimed.
func (s *AccessService) CanView(ctx context.Context, operator *domain.Operator, ticket *domain.Ticket) (bool, error) {
	if operator == nil || ticket == nil {
		return false, nil
	}
	if operator.IsAdmin() {
		return true, nil
	}
	if ticket.EmisorID != nil && *ticket.EmisorID == operator.ID {
		return true, nil
	}

	owner, err := s.store.Assignments.ActiveOwner(ctx, ticket.ID)
	if err != nil {
		return false, err
	}
	if owner != nil && owner.OperatorID == operator.ID {
		return true, nil
	}

	memberships, err := s.store.Memberships.ListActiveByOperator(ctx, operator.ID)
	if err != nil {
		return false, err
	}
	supervised := supervisoryDepartments(memberships)

	if ticket.DepartmentID != nil {
		if _, ok := supervised[*ticket.DepartmentID]; ok {
			return true, nil
		}
	}

	// Oversight follows the people involved, not only the ticket's own
	// department: a supervisor of the owner's or emisor's department sees
	// the ticket too.
	if owner != nil {
		ok, err := s.supervisesOperator(ctx, supervised, owner.OperatorID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	if ticket.EmisorID != nil {
		ok, err := s.supervisesOperator(ctx, supervised, *ticket.EmisorID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if owner == nil && ticket.DepartmentID != nil {
		member, err := s.store.Memberships.HasActiveMembership(ctx, operator.ID, *ticket.DepartmentID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	return false, nil
}

// CanWrite reports whether the operator may mutate the ticket. Writes are
// restricted to the admin, the current owner, and the emisor, and only while
// the ticket is open.
func (s *AccessService) CanWrite(ctx context.Context, operator *domain.Operator, ticket *domain.Ticket) (bool, error) {
	if operator == nil || ticket == nil {
		return false, nil
	}
	if ticket.Status == domain.StatusClosed {
		return false, nil
	}
	if operator.IsAdmin() {
		return true, nil
	}
	if ticket.EmisorID != nil && *ticket.EmisorID == operator.ID {
		return true, nil
	}
	owner, err := s.store.Assignments.ActiveOwner(ctx, ticket.ID)
	if err != nil {
		return false, err
	}
	return owner != nil && owner.OperatorID == operator.ID, nil
}

// GetTicketForOperator loads a ticket with its thread after applying the
// view rules. Operators always see private messages; external-facing views
// are served elsewhere and never include them.
func (s *AccessService) GetTicketForOperator(ctx context.Context, operator *domain.Operator, ticketID int64) (*domain.Ticket, []domain.Message, error) {
	ticket, err := s.store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, nil, err
	}
	ok, err := s.CanView(ctx, operator, ticket)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, util.NewForbidden("operator may not view this ticket")
	}
	messages, err := s.store.Messages.ListByTicket(ctx, ticket.ID, true)
	if err != nil {
		return nil, nil, err
	}
	return ticket, messages, nil
}

func (s *AccessService) supervisesOperator(ctx context.Context, supervised map[int64]struct{}, operatorID int64) (bool, error) {
	if len(supervised) == 0 {
		return false, nil
	}
	memberships, err := s.store.Memberships.ListActiveByOperator(ctx, operatorID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if _, ok := supervised[m.DepartmentID]; ok {
			return true, nil
		}
	}
	return false, nil
}

func supervisoryDepartments(memberships []domain.DepartmentMembership) map[int64]struct{} {
	result := make(map[int64]struct{})
	for _, m := range memberships {
		if m.Role.Supervisory() {
			result[m.DepartmentID] = struct{}{}
		}
	}
	return result
}
