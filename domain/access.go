package domain

// CanViewDepartment reports whether user may see the department's tasks.
// Admins see every department; everyone else only their own.
func CanViewDepartment(user *User, departmentID string) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin {
		return true
	}
	return user.InDepartment(departmentID)
}

// CanCreateTask gates the "new task" action: a department must be selected and
// visible to the user.
func CanCreateTask(user *User, departmentID string) bool {
	return departmentID != "" && CanViewDepartment(user, departmentID)
}

// CanMoveTask reports whether user may change the status of task.
func CanMoveTask(user *User, task Task) bool {
	return CanViewDepartment(user, task.DepartmentID)
}

// CanManageUsers gates user management (roles, memberships, account creation).
func CanManageUsers(user *User) bool {
	return user != nil && user.Role == RoleAdmin
}
