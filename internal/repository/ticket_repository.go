package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Tickets are soft-deleted
// only, so every lookup filters on deleted_at.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	FindOpenByRequester(ctx context.Context, requesterID int64) (*domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, title, description, status_id, priority_id, department_id,
       emisor_id, requester_id, created_at, resolved_at, deleted_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status_id, priority_id, department_id, emisor_id, requester_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		int(ticket.Status),
		ticket.PriorityID,
		ticket.DepartmentID,
		ticket.EmisorID,
		ticket.RequesterID,
	).Scan(&ticket.ID, &ticket.CreatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status_id=$3, priority_id=$4,
            department_id=$5, resolved_at=$6
        WHERE id=$7 AND deleted_at IS NULL`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		int(ticket.Status),
		ticket.PriorityID,
		ticket.DepartmentID,
		ticket.ResolvedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets WHERE id=$1 AND deleted_at IS NULL`
	return scanTicketRow(r.db.QueryRow(ctx, query, id))
}

// FindOpenByRequester returns the requester's oldest non-closed ticket, or
// nil when every ticket of theirs is closed. Backs the one-open-ticket rule.
func (r *ticketRepository) FindOpenByRequester(ctx context.Context, requesterID int64) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets
        WHERE requester_id=$1 AND status_id <> $2 AND deleted_at IS NULL
        ORDER BY created_at ASC
        LIMIT 1`
	ticket, err := scanTicketRow(r.db.QueryRow(ctx, query, requesterID, int(domain.StatusClosed)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var statusID int
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&statusID,
		&ticket.PriorityID,
		&ticket.DepartmentID,
		&ticket.EmisorID,
		&ticket.RequesterID,
		&ticket.CreatedAt,
		&ticket.ResolvedAt,
		&ticket.DeletedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.Status(statusID)
	return &ticket, nil
}
