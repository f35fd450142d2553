package ingest

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// mailbox is a minimal in-memory store for the pipeline's tables. A pool-less
// Store literal keeps InTx a passthrough so the real transaction body runs.
type mailbox struct {
	now time.Time

	tickets     map[int64]*domain.Ticket
	users       map[int64]*domain.ExternalUser
	departments map[int64]*domain.Department
	owners      map[int64]int64
	messages    []*domain.Message
	attachments []domain.AttachmentReference
	audits      []domain.AuditEntry
	ledger      map[string]*domain.LedgerEntry

	nextID int64
}

func newMailbox() *mailbox {
	return &mailbox{
		now:         time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		tickets:     map[int64]*domain.Ticket{},
		users:       map[int64]*domain.ExternalUser{},
		departments: map[int64]*domain.Department{},
		owners:      map[int64]int64{},
		ledger:      map[string]*domain.LedgerEntry{},
	}
}

func (m *mailbox) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mailbox) store() *repository.Store {
	return &repository.Store{
		Tickets:       (*mbTickets)(m),
		ExternalUsers: (*mbUsers)(m),
		Departments:   (*mbDepartments)(m),
		Assignments:   (*mbAssignments)(m),
		Messages:      (*mbMessages)(m),
		Attachments:   (*mbAttachments)(m),
		Audit:         (*mbAudit)(m),
		Ledger:        (*mbLedger)(m),
	}
}

func (m *mailbox) addUser(email string) *domain.ExternalUser {
	user := &domain.ExternalUser{ID: m.id(), Name: "user", Email: email, CreatedAt: m.now}
	m.users[user.ID] = user
	return user
}

func (m *mailbox) addTicket(status domain.Status, requesterID int64) *domain.Ticket {
	ticket := &domain.Ticket{
		ID:          m.id(),
		Title:       "existing conversation",
		Status:      status,
		PriorityID:  3,
		RequesterID: &requesterID,
		CreatedAt:   m.now.Add(-24 * time.Hour),
	}
	m.tickets[ticket.ID] = ticket
	return ticket
}

func (m *mailbox) addLedger(messageID string, ticketID int64) {
	m.ledger[messageID] = &domain.LedgerEntry{MessageID: messageID, TicketID: ticketID, CreatedAt: m.now}
}

type mbTickets mailbox

func (m *mbTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = (*mailbox)(m).id()
	ticket.CreatedAt = m.now
	clone := *ticket
	m.tickets[ticket.ID] = &clone
	return nil
}

func (m *mbTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := m.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *ticket
	m.tickets[ticket.ID] = &clone
	return nil
}

func (m *mbTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (m *mbTickets) FindOpenByRequester(_ context.Context, requesterID int64) (*domain.Ticket, error) {
	var open []*domain.Ticket
	for _, t := range m.tickets {
		if t.Status != domain.StatusClosed && t.RequesterID != nil && *t.RequesterID == requesterID {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	clone := *open[0]
	return &clone, nil
}

type mbUsers mailbox

func (m *mbUsers) Create(_ context.Context, user *domain.ExternalUser) error {
	user.ID = (*mailbox)(m).id()
	user.CreatedAt = m.now
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *mbUsers) GetByID(_ context.Context, id int64) (*domain.ExternalUser, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (m *mbUsers) GetByEmail(_ context.Context, email string) (*domain.ExternalUser, error) {
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

type mbDepartments mailbox

func (m *mbDepartments) GetByID(_ context.Context, id int64) (*domain.Department, error) {
	dept, ok := m.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *dept
	return &clone, nil
}

type mbAssignments mailbox

func (m *mbAssignments) ActiveOwner(_ context.Context, ticketID int64) (*domain.TicketAssignment, error) {
	operatorID, ok := m.owners[ticketID]
	if !ok {
		return nil, nil
	}
	return &domain.TicketAssignment{
		TicketID:   ticketID,
		OperatorID: operatorID,
		Role:       domain.AssignmentOwner,
		AssignedAt: m.now,
	}, nil
}

func (m *mbAssignments) Insert(_ context.Context, assignment *domain.TicketAssignment) error {
	assignment.ID = (*mailbox)(m).id()
	m.owners[assignment.TicketID] = assignment.OperatorID
	return nil
}

func (m *mbAssignments) CloseOwner(_ context.Context, ticketID int64, _ time.Time) error {
	delete(m.owners, ticketID)
	return nil
}

type mbMessages mailbox

func (m *mbMessages) Create(_ context.Context, msg *domain.Message) error {
	msg.ID = (*mailbox)(m).id()
	msg.CreatedAt = m.now
	clone := *msg
	m.messages = append(m.messages, &clone)
	return nil
}

func (m *mbMessages) ListByTicket(_ context.Context, ticketID int64, includePrivate bool) ([]domain.Message, error) {
	var out []domain.Message
	for _, msg := range m.messages {
		if msg.TicketID != ticketID {
			continue
		}
		if !includePrivate && msg.Visibility == domain.VisibilityPrivate {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (m *mbMessages) CountByTicket(_ context.Context, ticketID int64) (int, error) {
	count := 0
	for _, msg := range m.messages {
		if msg.TicketID == ticketID {
			count++
		}
	}
	return count, nil
}

type mbAttachments mailbox

func (m *mbAttachments) Create(_ context.Context, ref *domain.AttachmentReference) error {
	ref.ID = (*mailbox)(m).id()
	ref.CreatedAt = m.now
	m.attachments = append(m.attachments, *ref)
	return nil
}

func (m *mbAttachments) ListByMessage(_ context.Context, messageID int64) ([]domain.AttachmentReference, error) {
	var out []domain.AttachmentReference
	for _, ref := range m.attachments {
		if ref.MessageID == messageID {
			out = append(out, ref)
		}
	}
	return out, nil
}

type mbAudit mailbox

func (m *mbAudit) Create(_ context.Context, entry *domain.AuditEntry) error {
	entry.ID = (*mailbox)(m).id()
	entry.CreatedAt = m.now
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *mbAudit) List(_ context.Context, _ repository.AuditFilter) ([]domain.AuditEntry, error) {
	return append([]domain.AuditEntry{}, m.audits...), nil
}

type mbLedger mailbox

func (m *mbLedger) Get(_ context.Context, messageID string) (*domain.LedgerEntry, error) {
	entry, ok := m.ledger[messageID]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (m *mbLedger) FindByTicket(_ context.Context, ticketID int64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, entry := range m.ledger {
		if entry.TicketID == ticketID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (m *mbLedger) InsertIfAbsent(_ context.Context, entry *domain.LedgerEntry) (bool, error) {
	if _, ok := m.ledger[entry.MessageID]; ok {
		return false, nil
	}
	entry.CreatedAt = m.now
	clone := *entry
	m.ledger[entry.MessageID] = &clone
	return true, nil
}

type recordedReply struct {
	to       string
	ticketID int64
}

type fakeAutoreply struct {
	sent []recordedReply
}

func (n *fakeAutoreply) SendAutoreply(_ context.Context, to string, ticketID int64, _, _ string) error {
	n.sent = append(n.sent, recordedReply{to: to, ticketID: ticketID})
	return nil
}

type fakeBlobs struct {
	saved []string
}

func (b *fakeBlobs) Save(_ context.Context, _ int64, fileName string, _ []byte) (string, error) {
	b.saved = append(b.saved, fileName)
	return "key/" + fileName, nil
}

func newPipeline(m *mailbox, notifier Notifier, blobs AttachmentStore) *Service {
	st := m.store()
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store: st,
		Now:   func() time.Time { return m.now },
	})
	return NewService(Dependencies{
		Store:       st,
		Lifecycle:   lifecycle,
		Notifier:    notifier,
		Attachments: blobs,
		Config: config.IngestConfig{
			SendAutoreply:       true,
			DefaultDepartmentID: 1,
			DefaultPriorityID:   3,
		},
		Mapping: config.AddressMapping{Departments: map[string]int64{"billing@example.test": 2}},
		Now:     func() time.Time { return m.now },
	})
}

func inbound(msgID string) *InboundEmail {
	return &InboundEmail{
		FromEmail:  "alice@example.test",
		FromName:   "Alice",
		Subject:    "Help please",
		Body:       "my laptop is haunted",
		Recipients: []string{"support@example.test"},
		MessageID:  msgID,
	}
}

func TestIngestNewConversation(t *testing.T) {
	t.Run("creates ticket, message, ledger, autoreply", func(t *testing.T) {
		m := newMailbox()
		notifier := &fakeAutoreply{}
		svc := newPipeline(m, notifier, &fakeBlobs{})

		result, err := svc.Ingest(context.Background(), inbound("<a1@example.test>"))
		require.NoError(t, err)
		assert.True(t, result.CreatedTicket)
		assert.False(t, result.Skipped)
		assert.Equal(t, "a1@example.test", result.EmailMessageID)

		ticket := m.tickets[result.TicketID]
		require.NotNil(t, ticket)
		assert.Equal(t, domain.StatusNew, ticket.Status)
		assert.Equal(t, "Help please", ticket.Title)
		assert.Equal(t, int64(3), ticket.PriorityID)
		require.NotNil(t, ticket.DepartmentID)
		assert.Equal(t, int64(1), *ticket.DepartmentID)

		entry := m.ledger["a1@example.test"]
		require.NotNil(t, entry)
		assert.Equal(t, ticket.ID, entry.TicketID)
		require.NotNil(t, entry.LinkedMessageID)
		assert.Equal(t, result.MessageID, *entry.LinkedMessageID)

		require.Len(t, notifier.sent, 1)
		assert.Equal(t, "alice@example.test", notifier.sent[0].to)
	})

	t.Run("creates external user from sender", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		in := inbound("<a2@example.test>")
		in.FromName = ""
		_, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)

		var found *domain.ExternalUser
		for _, u := range m.users {
			if u.Email == "alice@example.test" {
				found = u
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, "alice", found.Name)
	})

	t.Run("routes by recipient mapping", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		in := inbound("<a3@example.test>")
		in.Recipients = []string{"billing@example.test"}
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)

		ticket := m.tickets[result.TicketID]
		require.NotNil(t, ticket.DepartmentID)
		assert.Equal(t, int64(2), *ticket.DepartmentID)
	})

	t.Run("truncates long subject into title", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		in := inbound("<a4@example.test>")
		in.Subject = strings.Repeat("x", 300)
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, m.tickets[result.TicketID].Title, 100)
	})

	t.Run("multibyte subject truncates on a rune boundary", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		in := inbound("<a5@example.test>")
		in.Subject = strings.Repeat("€", 40)
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)

		title := m.tickets[result.TicketID].Title
		assert.True(t, utf8.ValidString(title))
		assert.LessOrEqual(t, len(title), 100)
		assert.Equal(t, strings.Repeat("€", 33), title)
	})

	t.Run("second fresh email lands on existing open ticket", func(t *testing.T) {
		m := newMailbox()
		user := m.addUser("alice@example.test")
		existing := m.addTicket(domain.StatusInProgress, user.ID)
		svc := newPipeline(m, nil, nil)

		result, err := svc.Ingest(context.Background(), inbound("<a5@example.test>"))
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, SkipOpenTicketExists, result.SkipReason)
		assert.Equal(t, existing.ID, result.TicketID)
		assert.NotNil(t, m.ledger["a5@example.test"])
	})

	t.Run("missing sender rejected", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		_, err := svc.Ingest(context.Background(), &InboundEmail{Body: "anonymous"})
		require.Error(t, err)
	})
}

func TestIngestIdempotence(t *testing.T) {
	t.Run("redelivery is a pure no-op", func(t *testing.T) {
		m := newMailbox()
		notifier := &fakeAutoreply{}
		svc := newPipeline(m, notifier, nil)

		first, err := svc.Ingest(context.Background(), inbound("<dup@example.test>"))
		require.NoError(t, err)
		require.True(t, first.CreatedTicket)

		second, err := svc.Ingest(context.Background(), inbound("<dup@example.test>"))
		require.NoError(t, err)
		assert.True(t, second.Skipped)
		assert.Equal(t, SkipDuplicate, second.SkipReason)
		assert.Equal(t, first.TicketID, second.TicketID)
		assert.Equal(t, first.MessageID, second.MessageID)

		assert.Len(t, m.tickets, 1)
		assert.Len(t, m.messages, 1)
		assert.Len(t, notifier.sent, 1)
	})

	t.Run("message id comparison is case-insensitive", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		_, err := svc.Ingest(context.Background(), inbound("<MixedCase@Example.Test>"))
		require.NoError(t, err)

		second, err := svc.Ingest(context.Background(), inbound("<mixedcase@example.test>"))
		require.NoError(t, err)
		assert.True(t, second.Skipped)
	})
}

func TestIngestThreading(t *testing.T) {
	setup := func(status domain.Status, owned bool) (*mailbox, *domain.Ticket, *domain.ExternalUser) {
		m := newMailbox()
		user := m.addUser("alice@example.test")
		ticket := m.addTicket(status, user.ID)
		m.addLedger("prior@example.test", ticket.ID)
		if owned {
			m.owners[ticket.ID] = 42
		}
		return m, ticket, user
	}

	reply := func(msgID string) *InboundEmail {
		in := inbound(msgID)
		in.InReplyTo = "<prior@example.test>"
		return in
	}

	t.Run("reply appends public message", func(t *testing.T) {
		m, ticket, user := setup(domain.StatusInProgress, true)
		svc := newPipeline(m, nil, nil)

		result, err := svc.Ingest(context.Background(), reply("<r1@example.test>"))
		require.NoError(t, err)
		assert.False(t, result.Skipped)
		assert.False(t, result.CreatedTicket)
		assert.Equal(t, ticket.ID, result.TicketID)

		require.Len(t, m.messages, 1)
		msg := m.messages[0]
		assert.Equal(t, user.ID, msg.SenderID)
		assert.Equal(t, domain.SenderExternalUser, msg.SenderKind)
		assert.Equal(t, domain.ChannelEmail, msg.Channel)

		entry := m.ledger["r1@example.test"]
		require.NotNil(t, entry)
		require.NotNil(t, entry.InReplyTo)
		assert.Equal(t, "prior@example.test", *entry.InReplyTo)
	})

	t.Run("closed ticket absorbs the reply", func(t *testing.T) {
		m, ticket, _ := setup(domain.StatusClosed, true)
		svc := newPipeline(m, nil, nil)

		result, err := svc.Ingest(context.Background(), reply("<r2@example.test>"))
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, SkipTicketClosed, result.SkipReason)
		assert.Equal(t, ticket.ID, result.TicketID)
		assert.Empty(t, m.messages)
		assert.NotNil(t, m.ledger["r2@example.test"])
	})

	t.Run("unclaimed ticket defers the reply", func(t *testing.T) {
		m, _, _ := setup(domain.StatusNew, false)
		svc := newPipeline(m, nil, nil)

		result, err := svc.Ingest(context.Background(), reply("<r3@example.test>"))
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, SkipTicketNotTaken, result.SkipReason)
		assert.Empty(t, m.messages)
	})

	t.Run("reply to unknown id opens a new conversation", func(t *testing.T) {
		m := newMailbox()
		svc := newPipeline(m, nil, nil)

		in := inbound("<r4@example.test>")
		in.InReplyTo = "<never-seen@example.test>"
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, result.CreatedTicket)
	})
}

func TestIngestCloseCommand(t *testing.T) {
	setup := func() (*mailbox, *domain.Ticket, *domain.ExternalUser, *Service) {
		m := newMailbox()
		user := m.addUser("alice@example.test")
		ticket := m.addTicket(domain.StatusInProgress, user.ID)
		m.addLedger("prior@example.test", ticket.ID)
		m.owners[ticket.ID] = 42
		return m, ticket, user, newPipeline(m, nil, nil)
	}

	for _, command := range []string{"close", "Close Ticket", " CERRAR ", "cerrar ticket"} {
		t.Run(command, func(t *testing.T) {
			m, ticket, _, svc := setup()

			in := inbound("<c1@example.test>")
			in.InReplyTo = "<prior@example.test>"
			in.Body = command
			result, err := svc.Ingest(context.Background(), in)
			require.NoError(t, err)
			assert.True(t, result.ClosedTicket)
			assert.Equal(t, domain.StatusClosed, m.tickets[ticket.ID].Status)
			assert.Empty(t, m.messages)
		})
	}

	t.Run("close from a non-requester is just a message", func(t *testing.T) {
		m, ticket, _, svc := setup()

		in := inbound("<c2@example.test>")
		in.FromEmail = "bob@example.test"
		in.InReplyTo = "<prior@example.test>"
		in.Body = "close"
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, result.ClosedTicket)
		assert.Equal(t, domain.StatusInProgress, m.tickets[ticket.ID].Status)
		assert.Len(t, m.messages, 1)
	})

	t.Run("close-like sentence is not a command", func(t *testing.T) {
		m, ticket, _, svc := setup()

		in := inbound("<c3@example.test>")
		in.InReplyTo = "<prior@example.test>"
		in.Body = "please close this when you get a chance"
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, result.ClosedTicket)
		assert.Equal(t, domain.StatusInProgress, m.tickets[ticket.ID].Status)
	})

	t.Run("close publishes one status change after commit", func(t *testing.T) {
		m, ticket, _, _ := setup()
		dispatcher := events.NewInMemoryDispatcher()
		var seen []events.Event
		dispatcher.Subscribe(events.EventTicketStatusChanged, func(_ context.Context, e events.Event) error {
			seen = append(seen, e)
			return nil
		})
		st := m.store()
		svc := NewService(Dependencies{
			Store: st,
			Lifecycle: service.NewLifecycleService(service.LifecycleDependencies{
				Store:      st,
				Dispatcher: dispatcher,
				Now:        func() time.Time { return m.now },
			}),
			Dispatcher: dispatcher,
			Config:     config.IngestConfig{DefaultDepartmentID: 1, DefaultPriorityID: 3},
			Now:        func() time.Time { return m.now },
		})

		in := inbound("<c4@example.test>")
		in.InReplyTo = "<prior@example.test>"
		in.Body = "close"
		result, err := svc.Ingest(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, result.ClosedTicket)
		require.Len(t, seen, 1)
		assert.Equal(t, ticket.ID, seen[0].TicketID)
		assert.Equal(t, events.ExternalActor(*ticket.RequesterID), seen[0].Actor)
	})
}

func TestIngestAttachments(t *testing.T) {
	m := newMailbox()
	blobs := &fakeBlobs{}
	svc := newPipeline(m, nil, blobs)

	in := inbound("<att@example.test>")
	in.Attachments = []AttachmentPayload{
		{FileName: "log.txt", Data: []byte("boom")},
		{FileName: "screen.png", Data: []byte{1, 2, 3}},
	}
	result, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"log.txt", "screen.png"}, blobs.saved)
	require.Len(t, m.attachments, 2)
	assert.Equal(t, result.MessageID, m.attachments[0].MessageID)
	assert.Equal(t, "key/log.txt", m.attachments[0].StorageKey)
}

func TestIngestWithoutMessageID(t *testing.T) {
	m := newMailbox()
	svc := newPipeline(m, nil, nil)

	result, err := svc.Ingest(context.Background(), inbound(""))
	require.NoError(t, err)
	assert.True(t, result.CreatedTicket)
	assert.Empty(t, m.ledger)
}
