package domain

import "slices"

// Role is the access level of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User is a registered account. DepartmentIDs is the source of truth for
// department membership.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	DepartmentIDs []string  `json:"departmentIds"`
	CreatedAt     Timestamp `json:"createdAt"`
	PasswordHash  string    `json:"passwordHash,omitempty"`
}

// InDepartment reports whether the user is a member of the department.
func (u User) InDepartment(departmentID string) bool {
	return slices.Contains(u.DepartmentIDs, departmentID)
}

// Public returns a copy safe to hand out: no password hash, own slice.
func (u User) Public() User {
	out := u
	out.PasswordHash = ""
	out.DepartmentIDs = append([]string{}, u.DepartmentIDs...)
	return out
}
