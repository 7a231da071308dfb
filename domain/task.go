package domain

// Status is both a task's lifecycle state and the id of the column holding it.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusBacklog, StatusInProgress, StatusReview, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Title is the column heading for the status.
func (s Status) Title() string {
	switch s {
	case StatusBacklog:
		return "Backlog"
	case StatusInProgress:
		return "In Progress"
	case StatusReview:
		return "Review"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a single card on the board.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	AssignedTo   *string   `json:"assignedTo"`
	DepartmentID string    `json:"departmentId"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// TaskFields carries the user supplied part of a new task.
type TaskFields struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	AssignedTo  *string  `json:"assignedTo,omitempty"`
}

// Column is one status bucket of the board.
type Column struct {
	ID    Status `json:"id"`
	Title string `json:"title"`
	Tasks []Task `json:"tasks"`
}

// NewColumns returns the four empty columns in display order.
func NewColumns() []Column {
	cols := make([]Column, 0, len(Statuses))
	for _, s := range Statuses {
		cols = append(cols, Column{ID: s, Title: s.Title(), Tasks: []Task{}})
	}
	return cols
}
