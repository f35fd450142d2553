package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
)

// fixture is an in-memory backing store shared by the fake repositories. A
// Store literal without a pool makes InTx run callbacks directly, so services
// under test exercise their real transaction bodies against these fakes.
type fixture struct {
	now time.Time

	tickets     map[int64]*domain.Ticket
	operators   map[int64]*domain.Operator
	users       map[int64]*domain.ExternalUser
	departments map[int64]*domain.Department
	priorities  map[int64]*domain.Priority
	memberships []domain.DepartmentMembership
	assignments []*domain.TicketAssignment
	messages    []*domain.Message
	attachments []domain.AttachmentReference
	audits      []domain.AuditEntry
	ledger      map[string]*domain.LedgerEntry

	nextTicketID     int64
	nextOperatorID   int64
	nextUserID       int64
	nextAssignmentID int64
	nextMessageID    int64
	nextAuditID      int64

	insertOwnerConflict bool
	operatorEmailTaken  bool
}

func newFixture() *fixture {
	return &fixture{
		now:         time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		tickets:     map[int64]*domain.Ticket{},
		operators:   map[int64]*domain.Operator{},
		users:       map[int64]*domain.ExternalUser{},
		departments: map[int64]*domain.Department{},
		priorities:  map[int64]*domain.Priority{},
		ledger:      map[string]*domain.LedgerEntry{},
	}
}

func (f *fixture) store() *repository.Store {
	return &repository.Store{
		Tickets:       &fakeTickets{f},
		Operators:     &fakeOperators{f},
		ExternalUsers: &fakeExternalUsers{f},
		Departments:   &fakeDepartments{f},
		Priorities:    &fakePriorities{f},
		Memberships:   &fakeMemberships{f},
		Assignments:   &fakeAssignments{f},
		Messages:      &fakeMessages{f},
		Attachments:   &fakeAttachments{f},
		Audit:         &fakeAudit{f},
		Ledger:        &fakeLedger{f},
	}
}

func (f *fixture) addOperator(role domain.GlobalRole) *domain.Operator {
	f.nextOperatorID++
	op := &domain.Operator{
		ID:        f.nextOperatorID,
		Name:      "Operator",
		Email:     "op@example.test",
		Role:      role,
		Active:    true,
		CreatedAt: f.now,
	}
	f.operators[op.ID] = op
	return op
}

func (f *fixture) addDepartment(active bool) *domain.Department {
	id := int64(len(f.departments) + 1)
	dept := &domain.Department{ID: id, Name: "Support", Active: active}
	f.departments[id] = dept
	return dept
}

func (f *fixture) addPriority(id int64) {
	f.priorities[id] = &domain.Priority{ID: id, Name: "Normal", Level: int(id)}
}

func (f *fixture) addTicket(status domain.Status, createdAt time.Time) *domain.Ticket {
	f.nextTicketID++
	ticket := &domain.Ticket{
		ID:         f.nextTicketID,
		Title:      "printer on fire",
		Status:     status,
		PriorityID: 3,
		CreatedAt:  createdAt,
	}
	if status == domain.StatusResolved || status == domain.StatusClosed {
		resolved := createdAt
		ticket.ResolvedAt = &resolved
	}
	f.tickets[ticket.ID] = ticket
	return ticket
}

func (f *fixture) addMembership(operatorID, departmentID int64, role domain.DepartmentRole) {
	f.memberships = append(f.memberships, domain.DepartmentMembership{
		ID:           int64(len(f.memberships) + 1),
		OperatorID:   operatorID,
		DepartmentID: departmentID,
		Role:         role,
		AssignedAt:   f.now,
	})
}

func (f *fixture) addOwner(ticketID, operatorID int64) *domain.TicketAssignment {
	f.nextAssignmentID++
	a := &domain.TicketAssignment{
		ID:         f.nextAssignmentID,
		TicketID:   ticketID,
		OperatorID: operatorID,
		Role:       domain.AssignmentOwner,
		AssignedAt: f.now,
	}
	f.assignments = append(f.assignments, a)
	return a
}

func (f *fixture) auditActions() []string {
	actions := make([]string, 0, len(f.audits))
	for _, a := range f.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505"}
}

type fakeTickets struct{ f *fixture }

func (r *fakeTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	r.f.nextTicketID++
	ticket.ID = r.f.nextTicketID
	ticket.CreatedAt = r.f.now
	clone := *ticket
	r.f.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.f.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *ticket
	r.f.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := r.f.tickets[id]
	if !ok || ticket.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTickets) FindOpenByRequester(_ context.Context, requesterID int64) (*domain.Ticket, error) {
	var open []*domain.Ticket
	for _, t := range r.f.tickets {
		if t.DeletedAt != nil || t.Status == domain.StatusClosed {
			continue
		}
		if t.RequesterID != nil && *t.RequesterID == requesterID {
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

type fakeOperators struct{ f *fixture }

func (r *fakeOperators) Create(_ context.Context, operator *domain.Operator) error {
	if r.f.operatorEmailTaken {
		return uniqueViolation()
	}
	for _, existing := range r.f.operators {
		if strings.EqualFold(existing.Email, operator.Email) {
			return uniqueViolation()
		}
	}
	r.f.nextOperatorID++
	operator.ID = r.f.nextOperatorID
	operator.CreatedAt = r.f.now
	clone := *operator
	r.f.operators[operator.ID] = &clone
	return nil
}

func (r *fakeOperators) GetByID(_ context.Context, id int64) (*domain.Operator, error) {
	op, ok := r.f.operators[id]
	if !ok || op.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	clone := *op
	return &clone, nil
}

func (r *fakeOperators) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	for _, op := range r.f.operators {
		if strings.EqualFold(op.Email, email) && op.DeletedAt == nil {
			clone := *op
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type fakeExternalUsers struct{ f *fixture }

func (r *fakeExternalUsers) Create(_ context.Context, user *domain.ExternalUser) error {
	r.f.nextUserID++
	user.ID = r.f.nextUserID
	user.CreatedAt = r.f.now
	clone := *user
	r.f.users[user.ID] = &clone
	return nil
}

func (r *fakeExternalUsers) GetByID(_ context.Context, id int64) (*domain.ExternalUser, error) {
	user, ok := r.f.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeExternalUsers) GetByEmail(_ context.Context, email string) (*domain.ExternalUser, error) {
	for _, user := range r.f.users {
		if strings.EqualFold(user.Email, email) && user.DeletedAt == nil {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

type fakeDepartments struct{ f *fixture }

func (r *fakeDepartments) GetByID(_ context.Context, id int64) (*domain.Department, error) {
	dept, ok := r.f.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *dept
	return &clone, nil
}

type fakePriorities struct{ f *fixture }

func (r *fakePriorities) GetByID(_ context.Context, id int64) (*domain.Priority, error) {
	p, ok := r.f.priorities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (r *fakePriorities) Exists(_ context.Context, id int64) (bool, error) {
	_, ok := r.f.priorities[id]
	return ok, nil
}

type fakeMemberships struct{ f *fixture }

func (r *fakeMemberships) ListActiveByOperator(_ context.Context, operatorID int64) ([]domain.DepartmentMembership, error) {
	var out []domain.DepartmentMembership
	for _, m := range r.f.memberships {
		if m.OperatorID == operatorID && m.UnassignedAt == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMemberships) HasActiveMembership(_ context.Context, operatorID, departmentID int64) (bool, error) {
	for _, m := range r.f.memberships {
		if m.OperatorID == operatorID && m.DepartmentID == departmentID && m.UnassignedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

type fakeAssignments struct{ f *fixture }

func (r *fakeAssignments) ActiveOwner(_ context.Context, ticketID int64) (*domain.TicketAssignment, error) {
	for _, a := range r.f.assignments {
		if a.TicketID == ticketID && a.Role == domain.AssignmentOwner && a.UnassignedAt == nil {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeAssignments) Insert(_ context.Context, assignment *domain.TicketAssignment) error {
	if r.f.insertOwnerConflict {
		return uniqueViolation()
	}
	if assignment.Role == domain.AssignmentOwner {
		for _, a := range r.f.assignments {
			if a.TicketID == assignment.TicketID && a.Role == domain.AssignmentOwner && a.UnassignedAt == nil {
				return uniqueViolation()
			}
		}
	}
	r.f.nextAssignmentID++
	assignment.ID = r.f.nextAssignmentID
	assignment.AssignedAt = r.f.now
	clone := *assignment
	r.f.assignments = append(r.f.assignments, &clone)
	return nil
}

func (r *fakeAssignments) CloseOwner(_ context.Context, ticketID int64, at time.Time) error {
	for _, a := range r.f.assignments {
		if a.TicketID == ticketID && a.Role == domain.AssignmentOwner && a.UnassignedAt == nil {
			closed := at
			a.UnassignedAt = &closed
		}
	}
	return nil
}

type fakeMessages struct{ f *fixture }

func (r *fakeMessages) Create(_ context.Context, msg *domain.Message) error {
	r.f.nextMessageID++
	msg.ID = r.f.nextMessageID
	msg.CreatedAt = r.f.now
	clone := *msg
	r.f.messages = append(r.f.messages, &clone)
	return nil
}

func (r *fakeMessages) ListByTicket(_ context.Context, ticketID int64, includePrivate bool) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range r.f.messages {
		if m.TicketID != ticketID || m.DeletedAt != nil {
			continue
		}
		if !includePrivate && m.Visibility == domain.VisibilityPrivate {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (r *fakeMessages) CountByTicket(_ context.Context, ticketID int64) (int, error) {
	count := 0
	for _, m := range r.f.messages {
		if m.TicketID == ticketID && m.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

type fakeAttachments struct{ f *fixture }

func (r *fakeAttachments) Create(_ context.Context, ref *domain.AttachmentReference) error {
	ref.ID = int64(len(r.f.attachments) + 1)
	ref.CreatedAt = r.f.now
	r.f.attachments = append(r.f.attachments, *ref)
	return nil
}

func (r *fakeAttachments) ListByMessage(_ context.Context, messageID int64) ([]domain.AttachmentReference, error) {
	var out []domain.AttachmentReference
	for _, ref := range r.f.attachments {
		if ref.MessageID == messageID {
			out = append(out, ref)
		}
	}
	return out, nil
}

type fakeAudit struct{ f *fixture }

func (r *fakeAudit) Create(_ context.Context, entry *domain.AuditEntry) error {
	r.f.nextAuditID++
	entry.ID = r.f.nextAuditID
	entry.CreatedAt = r.f.now
	r.f.audits = append(r.f.audits, *entry)
	return nil
}

func (r *fakeAudit) List(_ context.Context, filter repository.AuditFilter) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range r.f.audits {
		if filter.TicketID != nil && e.TicketID != *filter.TicketID {
			continue
		}
		if filter.OperatorID != nil && (e.OperatorID == nil || *e.OperatorID != *filter.OperatorID) {
			continue
		}
		if filter.Action != nil && e.Action != *filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeLedger struct{ f *fixture }

func (r *fakeLedger) Get(_ context.Context, messageID string) (*domain.LedgerEntry, error) {
	entry, ok := r.f.ledger[messageID]
	if !ok {
		return nil, nil
	}
	clone := *entry
	return &clone, nil
}

func (r *fakeLedger) FindByTicket(_ context.Context, ticketID int64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, entry := range r.f.ledger {
		if entry.TicketID == ticketID {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (r *fakeLedger) InsertIfAbsent(_ context.Context, entry *domain.LedgerEntry) (bool, error) {
	if _, ok := r.f.ledger[entry.MessageID]; ok {
		return false, nil
	}
	entry.CreatedAt = r.f.now
	clone := *entry
	r.f.ledger[entry.MessageID] = &clone
	return true, nil
}
