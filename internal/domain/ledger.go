package domain

import "time"

// LedgerEntry records a normalized email Message-ID seen by the system.
// Entries are append-only; existence of a Message-ID is the sole dedup
// oracle for inbound mail, and outbound sends record their ids here so human
// replies thread back to the right ticket.
type LedgerEntry struct {
	MessageID       string
	LinkedMessageID *int64
	TicketID        int64
	InReplyTo       *string
	RawHeaders      string
	CreatedAt       time.Time
}
