package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// AssignmentRepository encapsulates ticket assignment rows. The store carries
// a partial unique index on (ticket_id) WHERE role='OWNER' AND unassigned_at
// IS NULL, so concurrent owner inserts lose with a unique violation rather
// than creating a second active owner.
type AssignmentRepository interface {
	ActiveOwner(ctx context.Context, ticketID int64) (*domain.TicketAssignment, error)
	Insert(ctx context.Context, assignment *domain.TicketAssignment) error
	CloseOwner(ctx context.Context, ticketID int64, at time.Time) error
}

type assignmentRepository struct {
	db DBTX
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db DBTX) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// ActiveOwner returns nil without error when the ticket is unclaimed.
func (r *assignmentRepository) ActiveOwner(ctx context.Context, ticketID int64) (*domain.TicketAssignment, error) {
	const query = `
        SELECT id, ticket_id, operator_id, role, assigned_at, unassigned_at
        FROM ticket_assignments
        WHERE ticket_id=$1 AND role=$2 AND unassigned_at IS NULL`
	var a domain.TicketAssignment
	err := r.db.QueryRow(ctx, query, ticketID, domain.AssignmentOwner).Scan(
		&a.ID,
		&a.TicketID,
		&a.OperatorID,
		&a.Role,
		&a.AssignedAt,
		&a.UnassignedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) Insert(ctx context.Context, assignment *domain.TicketAssignment) error {
	const query = `
        INSERT INTO ticket_assignments (ticket_id, operator_id, role)
        VALUES ($1,$2,$3)
        RETURNING id, assigned_at`
	return r.db.QueryRow(ctx, query,
		assignment.TicketID,
		assignment.OperatorID,
		assignment.Role,
	).Scan(&assignment.ID, &assignment.AssignedAt)
}

func (r *assignmentRepository) CloseOwner(ctx context.Context, ticketID int64, at time.Time) error {
	const query = `
        UPDATE ticket_assignments SET unassigned_at=$1
        WHERE ticket_id=$2 AND role=$3 AND unassigned_at IS NULL`
	_, err := r.db.Exec(ctx, query, at, ticketID, domain.AssignmentOwner)
	return err
}
