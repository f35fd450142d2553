package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// AttachmentRepository stores attachment metadata; bytes live behind the
// AttachmentStore collaborator.
type AttachmentRepository interface {
	Create(ctx context.Context, ref *domain.AttachmentReference) error
	ListByMessage(ctx context.Context, messageID int64) ([]domain.AttachmentReference, error)
}

type attachmentRepository struct {
	db DBTX
}

// NewAttachmentRepository instantiates the repository.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, ref *domain.AttachmentReference) error {
	const query = `
        INSERT INTO attachments (message_id, file_name, storage_key)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query, ref.MessageID, ref.FileName, ref.StorageKey).
		Scan(&ref.ID, &ref.CreatedAt)
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, messageID int64) ([]domain.AttachmentReference, error) {
	const query = `
        SELECT id, message_id, file_name, storage_key, created_at
        FROM attachments WHERE message_id=$1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AttachmentReference
	for rows.Next() {
		var ref domain.AttachmentReference
		if err := rows.Scan(&ref.ID, &ref.MessageID, &ref.FileName, &ref.StorageKey, &ref.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}
