package domain

import "time"

// DepartmentRole enumerates roles an operator holds inside a department.
type DepartmentRole string

const (
	DeptRoleAgent      DepartmentRole = "AGENT"
	DeptRoleSupervisor DepartmentRole = "SUPERVISOR"
	DeptRoleLead       DepartmentRole = "LEAD"
)

// Supervisory reports whether the role grants cross-ticket oversight.
func (r DepartmentRole) Supervisory() bool {
	return r == DeptRoleSupervisor || r == DeptRoleLead
}

// DepartmentMembership links an operator to a department. Active membership
// has a NULL UnassignedAt; an operator may hold concurrent memberships in
// several departments with different roles.
type DepartmentMembership struct {
	ID           int64
	OperatorID   int64
	DepartmentID int64
	Role         DepartmentRole
	AssignedAt   time.Time
	UnassignedAt *time.Time
}

// AssignmentRole enumerates ticket assignment roles.
type AssignmentRole string

const (
	AssignmentOwner        AssignmentRole = "OWNER"
	AssignmentCollaborator AssignmentRole = "COLLABORATOR"
)

// TicketAssignment links an operator to a ticket. At most one row per ticket
// may have role OWNER and a NULL UnassignedAt; the store enforces this with a
// partial unique index.
type TicketAssignment struct {
	ID           int64
	TicketID     int64
	OperatorID   int64
	Role         AssignmentRole
	AssignedAt   time.Time
	UnassignedAt *time.Time
}
