package domain

import "time"

// GlobalRole enumerates operator platform roles.
type GlobalRole string

const (
	RoleAdmin      GlobalRole = "ADMIN"
	RoleSupervisor GlobalRole = "SUPERVISOR"
	RoleAgent      GlobalRole = "AGENT"
)

// Operator models a support agent, supervisor or administrator.
type Operator struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         GlobalRole
	Active       bool
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// IsAdmin reports whether the operator holds the global admin role.
func (o *Operator) IsAdmin() bool {
	return o != nil && o.Role == RoleAdmin
}

// ExternalUser is a requester known only by email. Created lazily the first
// time mail arrives from an unseen address; email is the natural key.
type ExternalUser struct {
	ID        int64
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
	DeletedAt *time.Time
}
