package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// AuditFilter captures audit listing parameters.
type AuditFilter struct {
	TicketID     *int64
	OperatorID   *int64
	DepartmentID *int64
	Action       *string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// AuditRepository is the append-only action log. Rows are never updated or
// deleted.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	db DBTX
}

// NewAuditRepository instantiates the repository.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	const query = `
        INSERT INTO audit_log (ticket_id, operator_id, external_user_id, action, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.OperatorID,
		entry.ExternalUserID,
		entry.Action,
		entry.OldValue,
		entry.NewValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error) {
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("a.id", "a.ticket_id", "a.operator_id", "a.external_user_id",
			"a.action", "a.old_value", "a.new_value", "a.created_at").
		From("audit_log a")

	if filter.TicketID != nil {
		builder = builder.Where(sq.Eq{"a.ticket_id": *filter.TicketID})
	}
	if filter.OperatorID != nil {
		builder = builder.Where(sq.Eq{"a.operator_id": *filter.OperatorID})
	}
	if filter.DepartmentID != nil {
		builder = builder.
			Join("tickets t ON t.id = a.ticket_id").
			Where(sq.Eq{"t.department_id": *filter.DepartmentID})
	}
	if filter.Action != nil {
		builder = builder.Where(sq.Eq{"a.action": *filter.Action})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"a.created_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"a.created_at": *filter.To})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder = builder.OrderBy("a.created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.OperatorID,
			&entry.ExternalUserID,
			&entry.Action,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
