package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// minimumTicketAge guards transitions away from New: a freshly created ticket
// must receive a response or age past this window before it can move on,
// except for an early close by the emisor or an admin.
const minimumTicketAge = time.Hour

// LifecycleService owns the ticket state machine and assignment operations.
// Every mutation runs in one transaction; audit rows are best-effort and
// never abort the primary write.
type LifecycleService struct {
	store      *repository.Store
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store      *repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        now,
	}
}

// TicketCreateInput describes an internally raised ticket.
type TicketCreateInput struct {
	Title        string
	Description  string
	PriorityID   int64
	DepartmentID *int64
}

// MessageInput describes an operator message payload.
type MessageInput struct {
	Subject    string
	Body       string
	Visibility domain.Visibility
	Channel    domain.Channel
}

// CreateTicket raises a ticket on behalf of an operator (the emisor).
func (s *LifecycleService) CreateTicket(ctx context.Context, emisor *domain.Operator, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, util.NewValidationError("title is required", nil)
	}

	var ticket *domain.Ticket
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		ok, err := st.Priorities.Exists(ctx, input.PriorityID)
		if err != nil {
			return err
		}
		if !ok {
			return util.NewNotFound("priority", map[string]any{"priority_id": input.PriorityID})
		}
		if input.DepartmentID != nil {
			dept, err := st.Departments.GetByID(ctx, *input.DepartmentID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return util.NewNotFound("department", map[string]any{"department_id": *input.DepartmentID})
				}
				return err
			}
			if !dept.Active {
				return util.NewValidationError("department inactive", nil)
			}
		}

		emisorID := emisor.ID
		ticket = &domain.Ticket{
			Title:        title,
			Description:  strings.TrimSpace(input.Description),
			Status:       domain.StatusNew,
			PriorityID:   input.PriorityID,
			DepartmentID: input.DepartmentID,
			EmisorID:     &emisorID,
		}
		if err := st.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &emisorID,
			Action:     domain.AuditTicketCreated,
			NewValue:   strPtr(ticket.Title),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.OperatorActor(emisor.ID),
		Payload: events.TicketCreatedPayload{
			DepartmentID: ticket.DepartmentID,
			PriorityID:   ticket.PriorityID,
			Title:        ticket.Title,
		},
	})
	return ticket, nil
}

// ChangeStatus validates and applies a status transition for an operator.
func (s *LifecycleService) ChangeStatus(ctx context.Context, actor *domain.Operator, ticketID int64, newStatus domain.Status) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, util.NewNotFound("status", map[string]any{"status_id": int(newStatus)})
	}

	var (
		ticket    *domain.Ticket
		oldStatus domain.Status
		changed   bool
	)
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		var err error
		ticket, err = getTicket(ctx, st, ticketID)
		if err != nil {
			return err
		}
		oldStatus = ticket.Status

		owner, err := st.Assignments.ActiveOwner(ctx, ticket.ID)
		if err != nil {
			return err
		}
		isAdmin := actor.IsAdmin()
		isEmisor := ticket.EmisorID != nil && *ticket.EmisorID == actor.ID
		isOwner := owner != nil && owner.OperatorID == actor.ID

		// The role gate covers the idempotent path too; the no-op may still
		// write the resolution-timestamp backfill below.
		if !isAdmin && !isEmisor && !isOwner {
			return util.NewForbidden("operator may not change this ticket's status")
		}

		if ticket.Status == newStatus {
			// Idempotent no-op; backfill the resolution timestamp for
			// tickets legacy-stuck in a terminal status without one.
			if (ticket.Status == domain.StatusResolved || ticket.Status == domain.StatusClosed) && ticket.ResolvedAt == nil {
				now := s.now()
				ticket.ResolvedAt = &now
				return st.Tickets.Update(ctx, ticket)
			}
			return nil
		}
		if ticket.Status == domain.StatusClosed && !isEmisor && !isAdmin {
			return util.NewForbidden("only the emisor or an admin may reopen a closed ticket")
		}
		if ticket.Status == domain.StatusClosed && newStatus == domain.StatusResolved && !isAdmin {
			// Reopening must land the ticket back in an open state.
			return util.NewValidationError("a reopened ticket must return to an open status first", nil)
		}
		if newStatus == domain.StatusResolved && !isOwner && !isAdmin {
			return util.NewForbidden("only the owner or an admin may resolve a ticket")
		}
		if newStatus == domain.StatusClosed && !isEmisor && !isAdmin {
			return util.NewForbidden("only the emisor or an admin may close a ticket")
		}
		if isOwner && !isEmisor && !isAdmin && newStatus != domain.StatusResolved {
			return util.NewForbidden("the owner may only move the ticket to resolved")
		}
		if isEmisor && !isOwner && !isAdmin && ticket.Status != domain.StatusClosed && newStatus != domain.StatusClosed {
			return util.NewForbidden("the emisor may only close the ticket")
		}

		if err := s.checkMinimumAge(ctx, st, ticket, newStatus, isEmisor || isAdmin); err != nil {
			return err
		}

		applyStatus(ticket, newStatus, s.now())
		if err := st.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		changed = true
		actorID := actor.ID
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &actorID,
			Action:     domain.AuditStatusChange,
			OldValue:   strPtr(oldStatus.Label()),
			NewValue:   strPtr(newStatus.Label()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    events.OperatorActor(actor.ID),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
				OldLabel:  oldStatus.Label(),
				NewLabel:  ticket.Status.Label(),
			},
		})
	}
	return ticket, nil
}

// CloseByRequester closes a ticket on behalf of its external requester. Used
// by the email pipeline when the body is a recognized close command; runs
// against the caller's transaction-scoped store, so instead of publishing the
// status-changed event it returns it for the caller to publish once that
// transaction commits. A nil event means nothing changed.
func (s *LifecycleService) CloseByRequester(ctx context.Context, st *repository.Store, ticket *domain.Ticket, user *domain.ExternalUser) (*events.Event, error) {
	if ticket.RequesterID == nil || *ticket.RequesterID != user.ID {
		return nil, util.NewForbidden("only the requester may close this ticket")
	}
	if ticket.Status == domain.StatusClosed {
		return nil, nil
	}
	oldStatus := ticket.Status
	applyStatus(ticket, domain.StatusClosed, s.now())
	if err := st.Tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	userID := user.ID
	s.bestEffortAudit(ctx, st, &domain.AuditEntry{
		TicketID:       ticket.ID,
		ExternalUserID: &userID,
		Action:         domain.AuditStatusChange,
		OldValue:       strPtr(oldStatus.Label()),
		NewValue:       strPtr(domain.StatusClosed.Label()),
	})
	return &events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.ExternalActor(user.ID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: domain.StatusClosed,
			OldLabel:  oldStatus.Label(),
			NewLabel:  domain.StatusClosed.Label(),
		},
	}, nil
}

// ChangePriority applies a priority change. Rejected on closed tickets,
// idempotent when unchanged.
func (s *LifecycleService) ChangePriority(ctx context.Context, actor *domain.Operator, ticketID, priorityID int64) (*domain.Ticket, error) {
	var (
		ticket  *domain.Ticket
		oldID   int64
		changed bool
	)
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		var err error
		ticket, err = getTicket(ctx, st, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.StatusClosed {
			return util.NewValidationError("cannot change priority of a closed ticket", nil)
		}
		if err := requireWriteRole(ctx, st, actor, ticket); err != nil {
			return err
		}
		ok, err := st.Priorities.Exists(ctx, priorityID)
		if err != nil {
			return err
		}
		if !ok {
			return util.NewNotFound("priority", map[string]any{"priority_id": priorityID})
		}
		if ticket.PriorityID == priorityID {
			return nil
		}
		oldID = ticket.PriorityID
		ticket.PriorityID = priorityID
		if err := st.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		changed = true
		actorID := actor.ID
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &actorID,
			Action:     domain.AuditPriorityChange,
			OldValue:   strPtr(strconv.FormatInt(oldID, 10)),
			NewValue:   strPtr(strconv.FormatInt(priorityID, 10)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Actor:    events.OperatorActor(actor.ID),
			Payload: events.TicketPriorityChangedPayload{
				OldPriorityID: oldID,
				NewPriorityID: priorityID,
			},
		})
	}
	return ticket, nil
}

// Take claims an unowned ticket for the acting operator. The partial unique
// index on active owner rows turns a concurrent claim into a unique
// violation, which surfaces as "ticket already assigned".
func (s *LifecycleService) Take(ctx context.Context, actor *domain.Operator, ticketID int64) (*domain.TicketAssignment, error) {
	var assignment *domain.TicketAssignment
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		ticket, err := getTicket(ctx, st, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.StatusClosed {
			return util.NewValidationError("cannot take a closed ticket", nil)
		}
		owner, err := st.Assignments.ActiveOwner(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if owner != nil {
			return util.NewValidationError("ticket already assigned", nil)
		}
		if ticket.DepartmentID == nil {
			return util.NewValidationError("ticket has no department to claim it from", nil)
		}
		member, err := st.Memberships.HasActiveMembership(ctx, actor.ID, *ticket.DepartmentID)
		if err != nil {
			return err
		}
		if !member {
			return util.NewForbidden("operator is not a member of the ticket's department")
		}

		assignment = &domain.TicketAssignment{
			TicketID:   ticket.ID,
			OperatorID: actor.ID,
			Role:       domain.AssignmentOwner,
		}
		if err := st.Assignments.Insert(ctx, assignment); err != nil {
			if repository.IsUniqueViolation(err) {
				return util.NewValidationError("ticket already assigned", nil)
			}
			return err
		}
		actorID := actor.ID
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &actorID,
			Action:     domain.AuditTicketTaken,
			NewValue:   strPtr(strconv.FormatInt(actor.ID, 10)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketTaken,
		TicketID: assignment.TicketID,
		Actor:    events.OperatorActor(actor.ID),
		Payload:  events.TicketTakenPayload{OwnerID: actor.ID},
	})
	return assignment, nil
}

// Reassign moves ownership to another operator. The old owner row is closed
// and the new one opened in the same transaction.
func (s *LifecycleService) Reassign(ctx context.Context, actor *domain.Operator, ticketID, newOperatorID int64) (*domain.TicketAssignment, error) {
	var (
		assignment *domain.TicketAssignment
		oldOwnerID *int64
	)
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		ticket, err := getTicket(ctx, st, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.StatusClosed {
			return util.NewValidationError("cannot reassign a closed ticket", nil)
		}
		allowed, err := hasSupervisoryPrivilege(ctx, st, actor)
		if err != nil {
			return err
		}
		if !allowed {
			return util.NewForbidden("only an admin or supervisor may reassign tickets")
		}
		newOwner, err := st.Operators.GetByID(ctx, newOperatorID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return util.NewNotFound("operator", map[string]any{"operator_id": newOperatorID})
			}
			return err
		}
		if !newOwner.Active {
			return util.NewValidationError("cannot assign to an inactive operator", nil)
		}

		owner, err := st.Assignments.ActiveOwner(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if owner != nil {
			if owner.OperatorID == newOperatorID {
				assignment = owner
				return nil
			}
			id := owner.OperatorID
			oldOwnerID = &id
			if err := st.Assignments.CloseOwner(ctx, ticket.ID, s.now()); err != nil {
				return err
			}
		}

		assignment = &domain.TicketAssignment{
			TicketID:   ticket.ID,
			OperatorID: newOperatorID,
			Role:       domain.AssignmentOwner,
		}
		if err := st.Assignments.Insert(ctx, assignment); err != nil {
			return err
		}
		actorID := actor.ID
		var oldValue *string
		if oldOwnerID != nil {
			oldValue = strPtr(strconv.FormatInt(*oldOwnerID, 10))
		}
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &actorID,
			Action:     domain.AuditTicketReassign,
			OldValue:   oldValue,
			NewValue:   strPtr(strconv.FormatInt(newOperatorID, 10)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReassigned,
		TicketID: assignment.TicketID,
		Actor:    events.OperatorActor(actor.ID),
		Payload: events.TicketReassignedPayload{
			OldOwnerID: oldOwnerID,
			NewOwnerID: assignment.OperatorID,
		},
	})
	return assignment, nil
}

// AddMessage appends an operator message to a ticket. A public reply to a New
// ticket advances it to In Progress.
func (s *LifecycleService) AddMessage(ctx context.Context, actor *domain.Operator, ticketID int64, input MessageInput) (*domain.Message, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, util.NewValidationError("message body is required", nil)
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	channel := input.Channel
	if channel == 0 {
		channel = domain.ChannelWeb
	}

	var msg *domain.Message
	err := s.store.InTx(ctx, func(st *repository.Store) error {
		ticket, err := getTicket(ctx, st, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status == domain.StatusClosed {
			return util.NewValidationError("cannot add messages to a closed ticket", nil)
		}
		if err := requireWriteRole(ctx, st, actor, ticket); err != nil {
			return err
		}

		msg = &domain.Message{
			TicketID:   ticket.ID,
			SenderID:   actor.ID,
			SenderKind: domain.SenderOperator,
			Visibility: visibility,
			Subject:    strings.TrimSpace(input.Subject),
			Body:       body,
			Channel:    channel,
		}
		if err := st.Messages.Create(ctx, msg); err != nil {
			return err
		}

		if visibility == domain.VisibilityPublic && ticket.Status == domain.StatusNew {
			oldStatus := ticket.Status
			applyStatus(ticket, domain.StatusInProgress, s.now())
			if err := st.Tickets.Update(ctx, ticket); err != nil {
				return err
			}
			actorID := actor.ID
			s.bestEffortAudit(ctx, st, &domain.AuditEntry{
				TicketID:   ticket.ID,
				OperatorID: &actorID,
				Action:     domain.AuditStatusChange,
				OldValue:   strPtr(oldStatus.Label()),
				NewValue:   strPtr(domain.StatusInProgress.Label()),
			})
		}

		actorID := actor.ID
		action := domain.AuditMessagePublic
		if visibility == domain.VisibilityPrivate {
			action = domain.AuditMessagePrivate
		}
		s.bestEffortAudit(ctx, st, &domain.AuditEntry{
			TicketID:   ticket.ID,
			OperatorID: &actorID,
			Action:     action,
			NewValue:   strPtr(bodyPreview(body, 120)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: msg.TicketID,
		Actor:    events.OperatorActor(actor.ID),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderKind:  msg.SenderKind,
			Visibility:  msg.Visibility,
			BodyPreview: bodyPreview(msg.Body, 120),
		},
	})
	return msg, nil
}

func (s *LifecycleService) checkMinimumAge(ctx context.Context, st *repository.Store, ticket *domain.Ticket, newStatus domain.Status, closeAuthorized bool) error {
	if ticket.Status != domain.StatusNew || newStatus == domain.StatusNew {
		return nil
	}
	if newStatus == domain.StatusClosed && closeAuthorized {
		return nil
	}
	count, err := st.Messages.CountByTicket(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	elapsed := s.now().Sub(ticket.CreatedAt)
	if elapsed >= minimumTicketAge {
		return nil
	}
	remaining := int(math.Ceil((minimumTicketAge - elapsed).Minutes()))
	return util.NewValidationError("ticket is too new to change status", map[string]any{
		"remaining_minutes": remaining,
	})
}

func (s *LifecycleService) bestEffortAudit(ctx context.Context, st *repository.Store, entry *domain.AuditEntry) {
	if err := st.Audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed",
			zap.Int64("ticket_id", entry.TicketID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// applyStatus mutates the ticket's status and maintains the resolution
// timestamp invariant: set on entering a terminal-ish status, cleared on
// leaving it.
func applyStatus(ticket *domain.Ticket, newStatus domain.Status, now time.Time) {
	ticket.Status = newStatus
	if newStatus == domain.StatusResolved || newStatus == domain.StatusClosed {
		ticket.ResolvedAt = &now
	} else {
		ticket.ResolvedAt = nil
	}
}

func getTicket(ctx context.Context, st *repository.Store, ticketID int64) (*domain.Ticket, error) {
	ticket, err := st.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// requireWriteRole enforces the write side of the access rules: admin, owner
// or emisor.
func requireWriteRole(ctx context.Context, st *repository.Store, actor *domain.Operator, ticket *domain.Ticket) error {
	if actor.IsAdmin() {
		return nil
	}
	if ticket.EmisorID != nil && *ticket.EmisorID == actor.ID {
		return nil
	}
	owner, err := st.Assignments.ActiveOwner(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if owner != nil && owner.OperatorID == actor.ID {
		return nil
	}
	return util.NewForbidden("operator may not write to this ticket")
}

// hasSupervisoryPrivilege reports whether the operator is an admin, a global
// supervisor, or holds a supervisory membership somewhere.
func hasSupervisoryPrivilege(ctx context.Context, st *repository.Store, actor *domain.Operator) (bool, error) {
	if actor.IsAdmin() || actor.Role == domain.RoleSupervisor {
		return true, nil
	}
	memberships, err := st.Memberships.ListActiveByOperator(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.Role.Supervisory() {
			return true, nil
		}
	}
	return false, nil
}

func bodyPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}

func strPtr(s string) *string {
	return &s
}
