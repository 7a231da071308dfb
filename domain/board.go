package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Board holds every task, partitioned into the four status columns. A task's
// Status always equals the id of the column it sits in.
type Board struct {
	kv  KV
	ids IDGenerator
	now func() time.Time

	mu sync.Mutex
}

func NewBoard(kv KV, ids IDGenerator, now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{kv: kv, ids: ids, now: now}
}

// CreateTask appends a task to the column named by fields.Status (backlog when
// empty). Without a user or a department nothing happens and created is false.
func (b *Board) CreateTask(ctx context.Context, user *User, departmentID string, fields TaskFields) (task Task, created bool, err error) {
	if user == nil || departmentID == "" {
		return Task{}, false, nil
	}
	if fields.Status == "" {
		fields.Status = StatusBacklog
	}
	if !fields.Status.Valid() {
		return Task{}, false, ErrInvalidStatus
	}
	if fields.Priority == "" {
		fields.Priority = PriorityMedium
	}
	if !fields.Priority.Valid() {
		return Task{}, false, ErrInvalidPriority
	}
	if strings.TrimSpace(fields.Title) == "" {
		return Task{}, false, fmt.Errorf("%w: task title is required", ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cols, err := b.load(ctx)
	if err != nil {
		return Task{}, false, err
	}
	task = Task{
		ID:           b.ids.NewID(),
		Title:        fields.Title,
		Description:  fields.Description,
		Status:       fields.Status,
		Priority:     fields.Priority,
		AssignedTo:   fields.AssignedTo,
		DepartmentID: departmentID,
		CreatedBy:    user.ID,
		CreatedAt:    NewTimestamp(b.now()),
	}
	ci := columnIndex(cols, task.Status)
	cols[ci].Tasks = append(cols[ci].Tasks, task)
	if err := saveRecord(ctx, b.kv, BoardKey, cols); err != nil {
		return Task{}, false, err
	}
	return task, true, nil
}

// MoveTask takes the task out of its column and appends it to target with the
// status updated. An unknown task id is a no-op reported by moved=false.
func (b *Board) MoveTask(ctx context.Context, taskID string, target Status) (task Task, moved bool, err error) {
	if !target.Valid() {
		return Task{}, false, ErrInvalidStatus
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cols, err := b.load(ctx)
	if err != nil {
		return Task{}, false, err
	}
	ci, ti := findTask(cols, taskID)
	if ci < 0 {
		return Task{}, false, nil
	}
	task = cols[ci].Tasks[ti]
	cols[ci].Tasks = append(cols[ci].Tasks[:ti:ti], cols[ci].Tasks[ti+1:]...)

	task.Status = target
	dst := columnIndex(cols, target)
	cols[dst].Tasks = append(cols[dst].Tasks, task)
	if err := saveRecord(ctx, b.kv, BoardKey, cols); err != nil {
		return Task{}, false, err
	}
	return task, true, nil
}

// Task looks a task up by id.
func (b *Board) Task(ctx context.Context, taskID string) (Task, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cols, err := b.load(ctx)
	if err != nil {
		return Task{}, false, err
	}
	ci, ti := findTask(cols, taskID)
	if ci < 0 {
		return Task{}, false, nil
	}
	return cols[ci].Tasks[ti], true, nil
}

// TasksInDepartment returns the department's tasks in column order.
func (b *Board) TasksInDepartment(ctx context.Context, departmentID string) ([]Task, error) {
	cols, err := b.Columns(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	for _, c := range cols {
		tasks = append(tasks, c.Tasks...)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// Columns returns the four columns restricted to the department's tasks.
func (b *Board) Columns(ctx context.Context, departmentID string) ([]Column, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cols, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	out := NewColumns()
	for i, c := range cols {
		for _, t := range c.Tasks {
			if t.DepartmentID == departmentID {
				out[i].Tasks = append(out[i].Tasks, t)
			}
		}
	}
	return out, nil
}

// load returns the persisted columns re-laid onto the fixed column set, so a
// record missing a column or holding them out of order still yields all four.
func (b *Board) load(ctx context.Context) ([]Column, error) {
	var stored []Column
	if _, err := loadRecord(ctx, b.kv, BoardKey, &stored); err != nil {
		return nil, err
	}
	cols := NewColumns()
	for _, c := range stored {
		if !c.ID.Valid() {
			return nil, fmt.Errorf("board: unknown column %q", c.ID)
		}
		i := columnIndex(cols, c.ID)
		for _, t := range c.Tasks {
			t.Status = c.ID
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols, nil
}

func columnIndex(cols []Column, s Status) int {
	for i := range cols {
		if cols[i].ID == s {
			return i
		}
	}
	return -1
}

func findTask(cols []Column, taskID string) (int, int) {
	for ci := range cols {
		for ti := range cols[ci].Tasks {
			if cols[ci].Tasks[ti].ID == taskID {
				return ci, ti
			}
		}
	}
	return -1, -1
}
