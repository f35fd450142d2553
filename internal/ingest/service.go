package ingest

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// Skip reasons reported when an inbound message is accepted but deliberately
// produces no ticket or message.
const (
	SkipDuplicate        = "duplicate"
	SkipTicketClosed     = "ticket_closed"
	SkipTicketNotTaken   = "ticket_not_taken"
	SkipOpenTicketExists = "open_ticket_exists"
)

// closeCommands are body keywords an external requester may send to close
// their own ticket by email.
var closeCommands = map[string]struct{}{
	"close":         {},
	"close ticket":  {},
	"cerrar":        {},
	"cerrar ticket": {},
}

// Notifier sends the autoreply acknowledging a newly created ticket.
type Notifier interface {
	SendAutoreply(ctx context.Context, to string, ticketID int64, subject, departmentName string) error
}

// AttachmentStore persists attachment bytes and returns the storage key.
type AttachmentStore interface {
	Save(ctx context.Context, ticketID int64, fileName string, data []byte) (string, error)
}

// Result describes the outcome of ingesting one inbound email.
type Result struct {
	Skipped        bool   `json:"skipped"`
	SkipReason     string `json:"skip_reason,omitempty"`
	CreatedTicket  bool   `json:"created_ticket"`
	ClosedTicket   bool   `json:"closed_ticket"`
	TicketID       int64  `json:"ticket_id,omitempty"`
	MessageID      int64  `json:"message_id,omitempty"`
	EmailMessageID string `json:"email_message_id,omitempty"`
}

// Service converts inbound email into tickets and messages exactly once.
// Steps that decide and write run in one transaction per message; attachment
// bytes and the autoreply happen after commit and are best-effort.
type Service struct {
	store       *repository.Store
	lifecycle   *service.LifecycleService
	notifier    Notifier
	attachments AttachmentStore
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	cfg         config.IngestConfig
	mapping     config.AddressMapping
	now         func() time.Time
}

// Dependencies bundles collaborators for the ingestion service.
type Dependencies struct {
	Store       *repository.Store
	Lifecycle   *service.LifecycleService
	Notifier    Notifier
	Attachments AttachmentStore
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Config      config.IngestConfig
	Mapping     config.AddressMapping
	Now         func() time.Time
}

// NewService constructs the ingestion service.
func NewService(deps Dependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       deps.Store,
		lifecycle:   deps.Lifecycle,
		notifier:    deps.Notifier,
		attachments: deps.Attachments,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		cfg:         deps.Config,
		mapping:     deps.Mapping,
		now:         now,
	}
}

// Ingest runs the per-message algorithm: dedup against the ledger, resolve or
// create the requester, thread onto an existing ticket or create a new one.
func (s *Service) Ingest(ctx context.Context, in *InboundEmail) (*Result, error) {
	if in == nil || strings.TrimSpace(in.FromEmail) == "" {
		return nil, util.NewValidationError("sender address is required", nil)
	}
	msgID := NormalizeMessageID(in.MessageID)
	inReplyTo := NormalizeMessageID(in.InReplyTo)
	subject := in.Subject
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}

	result := &Result{EmailMessageID: msgID}
	var (
		createdEvent *events.Event
		closedEvent  *events.Event
		userID       int64
	)

	err := s.store.InTx(ctx, func(st *repository.Store) error {
		// The ledger is the sole dedup oracle: an already seen Message-ID
		// means redelivery, which must be a pure no-op.
		if msgID != "" {
			existing, err := st.Ledger.Get(ctx, msgID)
			if err != nil {
				return err
			}
			if existing != nil {
				result.Skipped = true
				result.SkipReason = SkipDuplicate
				result.TicketID = existing.TicketID
				if existing.LinkedMessageID != nil {
					result.MessageID = *existing.LinkedMessageID
				}
				return nil
			}
		}

		user, err := s.resolveRequester(ctx, st, in)
		if err != nil {
			return err
		}
		userID = user.ID

		ticket, err := s.resolveThread(ctx, st, inReplyTo)
		if err != nil {
			return err
		}

		if ticket != nil {
			return s.ingestIntoThread(ctx, st, in, ticket, user, msgID, inReplyTo, subject, result, &closedEvent)
		}
		return s.ingestNewConversation(ctx, st, in, user, msgID, inReplyTo, subject, result, &createdEvent)
	})
	if err != nil {
		return nil, err
	}

	if result.Skipped {
		return result, nil
	}
	if result.ClosedTicket {
		// The close command's status change is published only once its
		// transaction has committed, like every other event path.
		if closedEvent != nil {
			s.publishEvent(ctx, *closedEvent)
		}
		return result, nil
	}

	// Attachment bytes live outside the transaction; a failed save is logged
	// and skipped, never undoing the committed ticket/message.
	if result.MessageID != 0 {
		s.saveAttachments(ctx, in, result.TicketID, result.MessageID)
	}

	if createdEvent != nil {
		s.publishEvent(ctx, *createdEvent)
		if s.cfg.SendAutoreply {
			s.sendAutoreply(ctx, in.FromEmail, result.TicketID, subject)
		}
	} else if result.MessageID != 0 {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketMessageAdded,
			TicketID: result.TicketID,
			Actor:    events.ExternalActor(userID),
			Payload: events.TicketMessageAddedPayload{
				MessageID:  result.MessageID,
				SenderKind: domain.SenderExternalUser,
				Visibility: domain.VisibilityPublic,
			},
		})
	}
	return result, nil
}

func (s *Service) resolveRequester(ctx context.Context, st *repository.Store, in *InboundEmail) (*domain.ExternalUser, error) {
	email := strings.ToLower(strings.TrimSpace(in.FromEmail))
	user, err := st.ExternalUsers.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	name := strings.TrimSpace(in.FromName)
	if name == "" {
		name = localPart(email)
	}
	user = &domain.ExternalUser{Name: name, Email: email}
	if err := st.ExternalUsers.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// resolveThread maps the normalized In-Reply-To id to a ticket through the
// ledger. A reply to an id we never recorded is treated as a fresh
// conversation.
func (s *Service) resolveThread(ctx context.Context, st *repository.Store, inReplyTo string) (*domain.Ticket, error) {
	if inReplyTo == "" {
		return nil, nil
	}
	prior, err := st.Ledger.Get(ctx, inReplyTo)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, nil
	}
	ticket, err := st.Tickets.GetByID(ctx, prior.TicketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ticket, err
}

func (s *Service) ingestIntoThread(ctx context.Context, st *repository.Store, in *InboundEmail, ticket *domain.Ticket, user *domain.ExternalUser, msgID, inReplyTo, subject string, result *Result, closedEvent **events.Event) error {
	result.TicketID = ticket.ID

	if ticket.Status == domain.StatusClosed {
		// Closed tickets silently absorb stray replies. The ledger entry
		// still lands so redelivery stays deduplicated.
		if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, ticket.ID, nil); err != nil {
			return err
		}
		result.Skipped = true
		result.SkipReason = SkipTicketClosed
		return nil
	}

	owner, err := st.Assignments.ActiveOwner(ctx, ticket.ID)
	if err != nil {
		return err
	}
	if owner == nil {
		// Nobody owns the conversation yet; replies wait until it is taken.
		if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, ticket.ID, nil); err != nil {
			return err
		}
		result.Skipped = true
		result.SkipReason = SkipTicketNotTaken
		return nil
	}

	if isCloseCommand(in.Body) && ticket.RequesterID != nil && *ticket.RequesterID == user.ID {
		event, err := s.lifecycle.CloseByRequester(ctx, st, ticket, user)
		if err != nil {
			return err
		}
		if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, ticket.ID, nil); err != nil {
			return err
		}
		*closedEvent = event
		result.ClosedTicket = true
		return nil
	}

	msg := &domain.Message{
		TicketID:   ticket.ID,
		SenderID:   user.ID,
		SenderKind: domain.SenderExternalUser,
		Visibility: domain.VisibilityPublic,
		Subject:    truncate(subject, 150),
		Body:       in.Body,
		Channel:    domain.ChannelEmail,
	}
	if err := st.Messages.Create(ctx, msg); err != nil {
		return err
	}
	s.bestEffortAudit(ctx, st, &domain.AuditEntry{
		TicketID:       ticket.ID,
		ExternalUserID: &user.ID,
		Action:         domain.AuditMessagePublic,
		NewValue:       strPtr(truncate(subject, 150)),
	})
	if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, ticket.ID, &msg.ID); err != nil {
		return err
	}
	result.MessageID = msg.ID
	return nil
}

func (s *Service) ingestNewConversation(ctx context.Context, st *repository.Store, in *InboundEmail, user *domain.ExternalUser, msgID, inReplyTo, subject string, result *Result, createdEvent **events.Event) error {
	// One open ticket per requester: a second fresh email lands on the
	// existing conversation's ledger instead of opening a duplicate.
	open, err := st.Tickets.FindOpenByRequester(ctx, user.ID)
	if err != nil {
		return err
	}
	if open != nil {
		if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, open.ID, nil); err != nil {
			return err
		}
		result.Skipped = true
		result.SkipReason = SkipOpenTicketExists
		result.TicketID = open.ID
		return nil
	}

	deptID := s.mapping.DepartmentFor(in.Recipients, s.cfg.DefaultDepartmentID)
	ticket := &domain.Ticket{
		Title:        truncate(subject, 100),
		Description:  in.Body,
		Status:       domain.StatusNew,
		PriorityID:   s.cfg.DefaultPriorityID,
		DepartmentID: &deptID,
		RequesterID:  &user.ID,
	}
	if err := st.Tickets.Create(ctx, ticket); err != nil {
		return err
	}

	msg := &domain.Message{
		TicketID:   ticket.ID,
		SenderID:   user.ID,
		SenderKind: domain.SenderExternalUser,
		Visibility: domain.VisibilityPublic,
		Subject:    truncate(subject, 150),
		Body:       in.Body,
		Channel:    domain.ChannelEmail,
	}
	if err := st.Messages.Create(ctx, msg); err != nil {
		return err
	}

	s.bestEffortAudit(ctx, st, &domain.AuditEntry{
		TicketID:       ticket.ID,
		ExternalUserID: &user.ID,
		Action:         domain.AuditTicketCreated,
		NewValue:       strPtr(ticket.Title),
	})
	s.bestEffortAudit(ctx, st, &domain.AuditEntry{
		TicketID:       ticket.ID,
		ExternalUserID: &user.ID,
		Action:         domain.AuditTicketReceived,
		NewValue:       strPtr(strings.Join(in.Recipients, ", ")),
	})

	if err := s.recordLedger(ctx, st, msgID, inReplyTo, in.RawHeaders, ticket.ID, &msg.ID); err != nil {
		return err
	}

	result.CreatedTicket = true
	result.TicketID = ticket.ID
	result.MessageID = msg.ID
	*createdEvent = &events.Event{
		Type:     events.EventTicketIngested,
		TicketID: ticket.ID,
		Actor:    events.ExternalActor(user.ID),
		Payload: events.TicketCreatedPayload{
			DepartmentID: ticket.DepartmentID,
			PriorityID:   ticket.PriorityID,
			Title:        ticket.Title,
			ViaEmail:     true,
		},
	}
	return nil
}

// recordLedger appends the Message-ID entry. Messages without an id cannot be
// deduplicated and leave no ledger trace.
func (s *Service) recordLedger(ctx context.Context, st *repository.Store, msgID, inReplyTo, rawHeaders string, ticketID int64, linkedMessageID *int64) error {
	if msgID == "" {
		return nil
	}
	entry := &domain.LedgerEntry{
		MessageID:       msgID,
		LinkedMessageID: linkedMessageID,
		TicketID:        ticketID,
		RawHeaders:      rawHeaders,
	}
	if inReplyTo != "" {
		entry.InReplyTo = &inReplyTo
	}
	_, err := st.Ledger.InsertIfAbsent(ctx, entry)
	return err
}

func (s *Service) saveAttachments(ctx context.Context, in *InboundEmail, ticketID, messageID int64) {
	for _, att := range in.Attachments {
		key, err := s.attachments.Save(ctx, ticketID, att.FileName, att.Data)
		if err != nil {
			s.logger.Warn("attachment save failed",
				zap.Int64("ticket_id", ticketID),
				zap.String("file_name", att.FileName),
				zap.Error(err))
			continue
		}
		ref := &domain.AttachmentReference{
			MessageID:  messageID,
			FileName:   att.FileName,
			StorageKey: key,
		}
		if err := s.store.Attachments.Create(ctx, ref); err != nil {
			s.logger.Warn("attachment record failed",
				zap.Int64("ticket_id", ticketID),
				zap.String("file_name", att.FileName),
				zap.Error(err))
		}
	}
}

func (s *Service) sendAutoreply(ctx context.Context, to string, ticketID int64, subject string) {
	if s.notifier == nil {
		return
	}
	deptName := "Support"
	if ticket, err := s.store.Tickets.GetByID(ctx, ticketID); err == nil && ticket.DepartmentID != nil {
		if dept, err := s.store.Departments.GetByID(ctx, *ticket.DepartmentID); err == nil {
			deptName = dept.Name
		}
	}
	if err := s.notifier.SendAutoreply(ctx, to, ticketID, subject, deptName); err != nil {
		s.logger.Warn("autoreply send failed",
			zap.Int64("ticket_id", ticketID),
			zap.String("to", to),
			zap.Error(err))
	}
}

func (s *Service) bestEffortAudit(ctx context.Context, st *repository.Store, entry *domain.AuditEntry) {
	if err := st.Audit.Create(ctx, entry); err != nil {
		s.logger.Warn("audit insert failed",
			zap.Int64("ticket_id", entry.TicketID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *Service) publishEvent(ctx context.Context, event events.Event) {
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

func isCloseCommand(body string) bool {
	_, ok := closeCommands[strings.ToLower(strings.TrimSpace(body))]
	return ok
}

// truncate cuts s to at most max bytes, backing up to a rune boundary so the
// result stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func strPtr(s string) *string {
	return &s
}
