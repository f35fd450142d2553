package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// DepartmentRepository reads the department catalog.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Department, error)
}

type departmentRepository struct {
	db DBTX
}

// NewDepartmentRepository instantiates the repository.
func NewDepartmentRepository(db DBTX) DepartmentRepository {
	return &departmentRepository{db: db}
}

func (r *departmentRepository) GetByID(ctx context.Context, id int64) (*domain.Department, error) {
	const query = `SELECT id, name, active FROM departments WHERE id=$1`
	var dept domain.Department
	if err := r.db.QueryRow(ctx, query, id).Scan(&dept.ID, &dept.Name, &dept.Active); err != nil {
		return nil, err
	}
	return &dept, nil
}

// PriorityRepository reads the priority catalog.
type PriorityRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Priority, error)
	Exists(ctx context.Context, id int64) (bool, error)
}

type priorityRepository struct {
	db DBTX
}

// NewPriorityRepository instantiates the repository.
func NewPriorityRepository(db DBTX) PriorityRepository {
	return &priorityRepository{db: db}
}

func (r *priorityRepository) GetByID(ctx context.Context, id int64) (*domain.Priority, error) {
	const query = `SELECT id, name, level FROM priorities WHERE id=$1`
	var p domain.Priority
	if err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Level); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *priorityRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM priorities WHERE id=$1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
