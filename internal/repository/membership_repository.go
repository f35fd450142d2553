package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// MembershipRepository reads department membership rows. Active membership
// means unassigned_at IS NULL.
type MembershipRepository interface {
	ListActiveByOperator(ctx context.Context, operatorID int64) ([]domain.DepartmentMembership, error)
	HasActiveMembership(ctx context.Context, operatorID, departmentID int64) (bool, error)
}

type membershipRepository struct {
	db DBTX
}

// NewMembershipRepository instantiates the repository.
func NewMembershipRepository(db DBTX) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) ListActiveByOperator(ctx context.Context, operatorID int64) ([]domain.DepartmentMembership, error) {
	const query = `
        SELECT id, operator_id, department_id, role, assigned_at, unassigned_at
        FROM department_memberships
        WHERE operator_id=$1 AND unassigned_at IS NULL`
	rows, err := r.db.Query(ctx, query, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DepartmentMembership
	for rows.Next() {
		var m domain.DepartmentMembership
		if err := rows.Scan(
			&m.ID,
			&m.OperatorID,
			&m.DepartmentID,
			&m.Role,
			&m.AssignedAt,
			&m.UnassignedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *membershipRepository) HasActiveMembership(ctx context.Context, operatorID, departmentID int64) (bool, error) {
	const query = `
        SELECT EXISTS(
            SELECT 1 FROM department_memberships
            WHERE operator_id=$1 AND department_id=$2 AND unassigned_at IS NULL)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, operatorID, departmentID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
