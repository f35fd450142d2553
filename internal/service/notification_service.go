package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// AssignmentNotifier delivers the "you now own this ticket" email.
type AssignmentNotifier interface {
	SendAssignmentNotice(ctx context.Context, to string, ticketID int64, title string) error
}

// NotificationService reacts to domain events with outbound notifications.
// Failures are logged and dropped; notifications never affect the operation
// that triggered them.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      *repository.Store
	notifier   AssignmentNotifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, store *repository.Store, notifier AssignmentNotifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		store:      store,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketTaken, n.handleOwnershipChange)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.handleOwnershipChange)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

// handleOwnershipChange emails the new owner of a taken or reassigned ticket.
func (n *NotificationService) handleOwnershipChange(ctx context.Context, event events.Event) error {
	var ownerID int64
	switch payload := event.Payload.(type) {
	case events.TicketTakenPayload:
		ownerID = payload.OwnerID
	case events.TicketReassignedPayload:
		ownerID = payload.NewOwnerID
	default:
		return nil
	}
	if n.notifier == nil {
		return nil
	}

	operator, err := n.store.Operators.GetByID(ctx, ownerID)
	if err != nil {
		n.logger.Warn("assignment notice: owner lookup failed",
			zap.Int64("ticket_id", event.TicketID),
			zap.Int64("operator_id", ownerID),
			zap.Error(err))
		return nil
	}
	ticket, err := n.store.Tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		n.logger.Warn("assignment notice: ticket lookup failed",
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
		return nil
	}
	if err := n.notifier.SendAssignmentNotice(ctx, operator.Email, ticket.ID, ticket.Title); err != nil {
		n.logger.Warn("assignment notice send failed",
			zap.Int64("ticket_id", ticket.ID),
			zap.String("to", operator.Email),
			zap.Error(err))
	}
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ticket status changed",
		zap.Int64("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}
