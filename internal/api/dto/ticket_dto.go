package dto

import "time"

// CreateTicketRequest is the payload for raising a ticket internally.
type CreateTicketRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	PriorityID   int64  `json:"priority_id"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// ChangeStatusRequest is the PATCH status payload.
type ChangeStatusRequest struct {
	Status int `json:"status"`
}

// ChangePriorityRequest is the PATCH priority payload.
type ChangePriorityRequest struct {
	PriorityID int64 `json:"priority_id"`
}

// ReassignRequest names the new owner.
type ReassignRequest struct {
	OperatorID int64 `json:"operator_id"`
}

// CreateMessageRequest is the payload for an operator message.
type CreateMessageRequest struct {
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body"`
	Visibility string `json:"visibility,omitempty"`
}

// TicketSummary is the compact ticket representation.
type TicketSummary struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Status       int        `json:"status"`
	StatusLabel  string     `json:"status_label"`
	PriorityID   int64      `json:"priority_id"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// TicketDetailResponse includes the message thread.
type TicketDetailResponse struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       int               `json:"status"`
	StatusLabel  string            `json:"status_label"`
	PriorityID   int64             `json:"priority_id"`
	DepartmentID *int64            `json:"department_id,omitempty"`
	EmisorID     *int64            `json:"emisor_id,omitempty"`
	RequesterID  *int64            `json:"requester_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
	Messages     []MessageResponse `json:"messages"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderKind string    `json:"sender_kind"`
	Visibility string    `json:"visibility"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	Channel    int64     `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
}

// AssignmentResponse describes an ownership row.
type AssignmentResponse struct {
	ID         int64     `json:"id"`
	TicketID   int64     `json:"ticket_id"`
	OperatorID int64     `json:"operator_id"`
	Role       string    `json:"role"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AuditEntryResponse is one action-log row.
type AuditEntryResponse struct {
	ID             int64     `json:"id"`
	TicketID       int64     `json:"ticket_id"`
	OperatorID     *int64    `json:"operator_id,omitempty"`
	ExternalUserID *int64    `json:"external_user_id,omitempty"`
	Action         string    `json:"action"`
	OldValue       *string   `json:"old_value,omitempty"`
	NewValue       *string   `json:"new_value,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
