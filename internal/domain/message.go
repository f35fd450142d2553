package domain

import "time"

// SenderKind indicates who authored a message.
type SenderKind string

const (
	SenderOperator     SenderKind = "OPERATOR"
	SenderExternalUser SenderKind = "EXTERNAL_USER"
)

// Visibility differentiates public replies from internal notes. External
// user facing views never see private messages.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Message captures a single communication in a ticket thread.
type Message struct {
	ID         int64
	TicketID   int64
	SenderID   int64
	SenderKind SenderKind
	Visibility Visibility
	Subject    string
	Body       string
	Channel    Channel
	CreatedAt  time.Time
	EditedAt   *time.Time
	DeletedAt  *time.Time
}

// AttachmentReference stores metadata for a stored attachment; the bytes live
// behind the AttachmentStore collaborator.
type AttachmentReference struct {
	ID         int64
	MessageID  int64
	FileName   string
	StorageKey string
	CreatedAt  time.Time
}
