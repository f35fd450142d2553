package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// against the pool or inside a transaction without knowing which.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles every repository plus the transaction boundary. Services hold
// a *Store and use InTx for multi-write operations; tests may construct a
// Store literal with fake repositories and a nil pool.
type Store struct {
	pool *pgxpool.Pool

	Tickets       TicketRepository
	Operators     OperatorRepository
	ExternalUsers ExternalUserRepository
	Departments   DepartmentRepository
	Priorities    PriorityRepository
	Memberships   MembershipRepository
	Assignments   AssignmentRepository
	Messages      MessageRepository
	Attachments   AttachmentRepository
	Audit         AuditRepository
	Ledger        LedgerRepository
}

// NewStore builds a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	s := storeOver(pool)
	s.pool = pool
	return s
}

func storeOver(db DBTX) *Store {
	return &Store{
		Tickets:       NewTicketRepository(db),
		Operators:     NewOperatorRepository(db),
		ExternalUsers: NewExternalUserRepository(db),
		Departments:   NewDepartmentRepository(db),
		Priorities:    NewPriorityRepository(db),
		Memberships:   NewMembershipRepository(db),
		Assignments:   NewAssignmentRepository(db),
		Messages:      NewMessageRepository(db),
		Attachments:   NewAttachmentRepository(db),
		Audit:         NewAuditRepository(db),
		Ledger:        NewLedgerRepository(db),
	}
}

// InTx runs fn against a transaction-scoped Store. The transaction commits
// when fn returns nil and rolls back otherwise. A Store without a pool (fakes
// in tests, or an already transaction-scoped Store) runs fn directly.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(storeOver(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
