package api

import (
	"time"

	"taskboard/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// IdempotencyKeyHeader lets clients retry task creation safely.
const IdempotencyKeyHeader = "Idempotency-Key"

type errorResponse struct {
	Error string `json:"error"`
}

// POST /api/register, POST /api/users
type registerRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     domain.Role `json:"role,omitempty"`
}

// POST /api/session
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token,omitempty"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

type usersResponse struct {
	Users []domain.User `json:"users"`
}

// PUT /api/users/:id/role
type roleRequest struct {
	Role domain.Role `json:"role"`
}

// POST /api/departments
type departmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type departmentsResponse struct {
	Departments []domain.Department `json:"departments"`
}

type boardResponse struct {
	Department domain.Department `json:"department"`
	Columns    []domain.Column   `json:"columns"`
}

// POST /api/departments/:id/tasks
type taskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	AssignedTo  *string         `json:"assignedTo"`
}

// PUT /api/tasks/:id/status
type moveRequest struct {
	Status domain.Status `json:"status"`
}
