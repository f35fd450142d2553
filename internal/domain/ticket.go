package domain

import "time"

// Ticket is the aggregate for support requests. A ticket is raised either
// internally by an operator (the emisor) or externally via inbound email, in
// which case RequesterID points at the external user.
type Ticket struct {
	ID           int64
	Title        string
	Description  string
	Status       Status
	PriorityID   int64
	DepartmentID *int64
	EmisorID     *int64
	RequesterID  *int64
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	DeletedAt    *time.Time
}

// Priority is a catalog row for ticket urgency.
type Priority struct {
	ID    int64
	Name  string
	Level int
}

// Department is a catalog row for the owning organizational unit.
type Department struct {
	ID     int64
	Name   string
	Active bool
}

// Channel identifies the transport a message arrived through.
type Channel int64

const (
	ChannelEmail Channel = 1
	ChannelWeb   Channel = 2
	ChannelPhone Channel = 3
)
