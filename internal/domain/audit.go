package domain

import "time"

// Audit action labels written by state-changing operations.
const (
	AuditStatusChange   = "status change"
	AuditPriorityChange = "priority change"
	AuditTicketCreated  = "ticket created"
	AuditTicketReceived = "ticket received"
	AuditTicketTaken    = "ticket taken"
	AuditTicketReassign = "ticket reassigned"
	AuditMessagePublic  = "public message"
	AuditMessagePrivate = "private message"
)

// AuditEntry is an append-only log row. The actor is either an operator or an
// external user; entries are never updated or deleted.
type AuditEntry struct {
	ID             int64
	TicketID       int64
	OperatorID     *int64
	ExternalUserID *int64
	Action         string
	OldValue       *string
	NewValue       *string
	CreatedAt      time.Time
}
