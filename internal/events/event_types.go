package events

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketIngested        EventType = "ticket_ingested"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketTaken           EventType = "ticket_taken"
	EventTicketReassigned      EventType = "ticket_reassigned"
	EventTicketMessageAdded    EventType = "ticket_message_added"
)

// Actor encapsulates actor metadata for an event. Exactly one of the ids is
// set; a nil pair means the system itself acted (poller, webhook).
type Actor struct {
	OperatorID     *int64 `json:"operator_id,omitempty"`
	ExternalUserID *int64 `json:"external_user_id,omitempty"`
}

// OperatorActor builds an Actor for an operator id.
func OperatorActor(id int64) Actor {
	return Actor{OperatorID: &id}
}

// ExternalActor builds an Actor for an external requester id.
func ExternalActor(id int64) Actor {
	return Actor{ExternalUserID: &id}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	DepartmentID *int64 `json:"department_id,omitempty"`
	PriorityID   int64  `json:"priority_id"`
	Title        string `json:"title"`
	ViaEmail     bool   `json:"via_email"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.Status `json:"old_status"`
	NewStatus domain.Status `json:"new_status"`
	OldLabel  string        `json:"old_label"`
	NewLabel  string        `json:"new_label"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriorityID int64 `json:"old_priority_id"`
	NewPriorityID int64 `json:"new_priority_id"`
}

// TicketTakenPayload payload.
type TicketTakenPayload struct {
	OwnerID int64 `json:"owner_id"`
}

// TicketReassignedPayload payload.
type TicketReassignedPayload struct {
	OldOwnerID *int64 `json:"old_owner_id,omitempty"`
	NewOwnerID int64  `json:"new_owner_id"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   int64             `json:"message_id"`
	SenderKind  domain.SenderKind `json:"sender_kind"`
	Visibility  domain.Visibility `json:"visibility"`
	BodyPreview string            `json:"body_preview"`
}
