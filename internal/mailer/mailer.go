package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/ingest"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// Mailer sends transactional email and records outbound Message-IDs in the
// ledger so a human reply to our mail threads back to the right ticket. All
// sends are best-effort from the caller's perspective.
type Mailer struct {
	client *gomail.Client
	store  *repository.Store
	logger *zap.Logger
	cfg    config.SMTPConfig
}

// SendInput describes one outbound message.
type SendInput struct {
	To        string
	Subject   string
	Body      string
	MessageID string // generated when empty
	InReplyTo string // sets In-Reply-To/References when non-empty
	TicketID  int64  // ledger association; 0 skips the ledger write
}

// New constructs a Mailer from SMTP configuration.
func New(cfg config.SMTPConfig, store *repository.Store, logger *zap.Logger) (*Mailer, error) {
	policy := gomail.NoTLS
	if cfg.StartTLS {
		policy = gomail.TLSMandatory
	}
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(policy),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: client, store: store, logger: logger, cfg: cfg}, nil
}

// Send delivers one message and, when it belongs to a ticket conversation,
// appends its Message-ID to the ledger. Returns the Message-ID used.
func (m *Mailer) Send(ctx context.Context, input SendInput) (string, error) {
	if input.To == "" {
		return "", fmt.Errorf("send: recipient required")
	}

	messageID := input.MessageID
	if messageID == "" {
		messageID = m.generateMessageID()
	}

	msg := gomail.NewMsg()
	if m.cfg.FromName != "" {
		if err := msg.FromFormat(m.cfg.FromName, m.cfg.FromAddress); err != nil {
			return "", fmt.Errorf("send: from address: %w", err)
		}
	} else {
		if err := msg.From(m.cfg.FromAddress); err != nil {
			return "", fmt.Errorf("send: from address: %w", err)
		}
	}
	if err := msg.To(input.To); err != nil {
		return "", fmt.Errorf("send: to address: %w", err)
	}
	msg.Subject(input.Subject)
	msg.SetMessageIDWithValue(strings.Trim(messageID, "<>"))
	if input.InReplyTo != "" {
		msg.SetGenHeader(gomail.HeaderInReplyTo, input.InReplyTo)
		msg.SetGenHeader(gomail.Header("References"), input.InReplyTo)
	}
	msg.SetBodyString(gomail.TypeTextPlain, input.Body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	m.logger.Info("email sent",
		zap.String("to", input.To),
		zap.String("subject", input.Subject),
		zap.String("message_id", messageID))

	if input.TicketID != 0 {
		m.recordLedger(ctx, messageID, input.InReplyTo, input.TicketID)
	}
	return messageID, nil
}

// SendAutoreply acknowledges a freshly created ticket. Implements the
// ingestion pipeline's Notifier.
func (m *Mailer) SendAutoreply(ctx context.Context, to string, ticketID int64, subject, departmentName string) error {
	if departmentName == "" {
		departmentName = "Support"
	}
	fullSubject := fmt.Sprintf("Ticket #%d: (%s)", ticketID, subject)
	body := fmt.Sprintf(
		"Ticket #%d: (%s)\n\n"+
			"Hello,\n\n"+
			"We received your message and created the ticket referenced above.\n"+
			"Your request is queued to be taken by the %s team.\n\n"+
			"This is an automated reply.\n\n"+
			"Thank you for contacting us.\n\nRegards,\n%s",
		ticketID, subject, departmentName, departmentName)

	_, err := m.Send(ctx, SendInput{
		To:       to,
		Subject:  fullSubject,
		Body:     body,
		TicketID: ticketID,
	})
	return err
}

// SendAssignmentNotice informs an operator they now own a ticket.
func (m *Mailer) SendAssignmentNotice(ctx context.Context, to string, ticketID int64, title string) error {
	subject := fmt.Sprintf("Ticket #%d assigned to you", ticketID)
	body := fmt.Sprintf(
		"Hello,\n\n"+
			"Ticket #%d (%s) has been assigned to you.\n\n"+
			"This is an automated notification.",
		ticketID, title)

	_, err := m.Send(ctx, SendInput{
		To:      to,
		Subject: subject,
		Body:    body,
	})
	return err
}

// generateMessageID derives an id from a random component plus the sender's
// domain.
func (m *Mailer) generateMessageID() string {
	domainPart := "localhost"
	if at := strings.LastIndex(m.cfg.FromAddress, "@"); at >= 0 && at < len(m.cfg.FromAddress)-1 {
		domainPart = m.cfg.FromAddress[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", strings.ReplaceAll(uuid.NewString(), "-", ""), domainPart)
}

// recordLedger stores the outbound id so future replies thread correctly. A
// ledger failure never fails the send that already happened.
func (m *Mailer) recordLedger(ctx context.Context, messageID, inReplyTo string, ticketID int64) {
	entry := &domain.LedgerEntry{
		MessageID:  ingest.NormalizeMessageID(messageID),
		TicketID:   ticketID,
		RawHeaders: fmt.Sprintf("Outbound mail for ticket %d", ticketID),
	}
	if normalized := ingest.NormalizeMessageID(inReplyTo); normalized != "" {
		entry.InReplyTo = &normalized
	}
	if _, err := m.store.Ledger.InsertIfAbsent(ctx, entry); err != nil {
		m.logger.Warn("outbound ledger insert failed",
			zap.Int64("ticket_id", ticketID),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
