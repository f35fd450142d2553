package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// LedgerRepository is the Message-ID ledger: the single dedup/threading oracle
// for email ingestion. Entries are append-only; InsertIfAbsent never
// overwrites an existing row.
type LedgerRepository interface {
	Get(ctx context.Context, messageID string) (*domain.LedgerEntry, error)
	FindByTicket(ctx context.Context, ticketID int64) ([]domain.LedgerEntry, error)
	InsertIfAbsent(ctx context.Context, entry *domain.LedgerEntry) (bool, error)
}

type ledgerRepository struct {
	db DBTX
}

// NewLedgerRepository instantiates the repository.
func NewLedgerRepository(db DBTX) LedgerRepository {
	return &ledgerRepository{db: db}
}

// Get returns nil without error when the id is unknown.
func (r *ledgerRepository) Get(ctx context.Context, messageID string) (*domain.LedgerEntry, error) {
	const query = `
        SELECT message_id, linked_message_id, ticket_id, in_reply_to, raw_headers, created_at
        FROM email_message_ids WHERE message_id=$1`
	var entry domain.LedgerEntry
	err := r.db.QueryRow(ctx, query, messageID).Scan(
		&entry.MessageID,
		&entry.LinkedMessageID,
		&entry.TicketID,
		&entry.InReplyTo,
		&entry.RawHeaders,
		&entry.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) FindByTicket(ctx context.Context, ticketID int64) ([]domain.LedgerEntry, error) {
	const query = `
        SELECT message_id, linked_message_id, ticket_id, in_reply_to, raw_headers, created_at
        FROM email_message_ids WHERE ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(
			&entry.MessageID,
			&entry.LinkedMessageID,
			&entry.TicketID,
			&entry.InReplyTo,
			&entry.RawHeaders,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// InsertIfAbsent reports whether the row was inserted; false means the
// Message-ID was already present.
func (r *ledgerRepository) InsertIfAbsent(ctx context.Context, entry *domain.LedgerEntry) (bool, error) {
	const query = `
        INSERT INTO email_message_ids (message_id, linked_message_id, ticket_id, in_reply_to, raw_headers)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (message_id) DO NOTHING`
	cmd, err := r.db.Exec(ctx, query,
		entry.MessageID,
		entry.LinkedMessageID,
		entry.TicketID,
		entry.InReplyTo,
		entry.RawHeaders,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
