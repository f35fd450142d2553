package service

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/pkg/util"
)

// AuditService exposes the append-only action log to supervisory readers.
type AuditService struct {
	store *repository.Store
}

// NewAuditService constructs the service.
func NewAuditService(store *repository.Store) *AuditService {
	return &AuditService{store: store}
}

// List returns audit entries matching the filter. Admins and supervisors
// only; agents have no business reading the raw log.
func (s *AuditService) List(ctx context.Context, actor *domain.Operator, filter repository.AuditFilter) ([]domain.AuditEntry, error) {
	allowed, err := hasSupervisoryPrivilege(ctx, s.store, actor)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, util.NewForbidden("only an admin or supervisor may read the audit log")
	}
	return s.store.Audit.List(ctx, filter)
}
