package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// MessageRepository encapsulates ticket message persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID int64, includePrivate bool) ([]domain.Message, error)
	CountByTicket(ctx context.Context, ticketID int64) (int, error)
}

type messageRepository struct {
	db DBTX
}

// NewMessageRepository instantiates the repository.
func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (ticket_id, sender_id, sender_kind, visibility, subject, body, channel_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.SenderKind,
		msg.Visibility,
		msg.Subject,
		msg.Body,
		int64(msg.Channel),
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID int64, includePrivate bool) ([]domain.Message, error) {
	query := `
        SELECT id, ticket_id, sender_id, sender_kind, visibility, subject, body, channel_id,
               created_at, edited_at, deleted_at
        FROM messages
        WHERE ticket_id=$1 AND deleted_at IS NULL`
	if !includePrivate {
		query += ` AND visibility='PUBLIC'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		var channelID int64
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderKind,
			&msg.Visibility,
			&msg.Subject,
			&msg.Body,
			&channelID,
			&msg.CreatedAt,
			&msg.EditedAt,
			&msg.DeletedAt,
		); err != nil {
			return nil, err
		}
		msg.Channel = domain.Channel(channelID)
		result = append(result, msg)
	}
	return result, rows.Err()
}

// CountByTicket counts every non-deleted message regardless of visibility;
// the minimum-age rule treats private notes as responses too.
func (r *messageRepository) CountByTicket(ctx context.Context, ticketID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE ticket_id=$1 AND deleted_at IS NULL`
	var count int
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
