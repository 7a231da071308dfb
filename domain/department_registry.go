package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DepartmentRegistry stores departments.
type DepartmentRegistry struct {
	kv  KV
	ids IDGenerator
	now func() time.Time

	mu sync.Mutex
}

func NewDepartmentRegistry(kv KV, ids IDGenerator, now func() time.Time) *DepartmentRegistry {
	if now == nil {
		now = time.Now
	}
	return &DepartmentRegistry{kv: kv, ids: ids, now: now}
}

// Create adds a department managed by its creator. Membership is not touched:
// the creator still has to be assigned to see it unless they are an admin.
func (r *DepartmentRegistry) Create(ctx context.Context, name, description, creatorID string) (Department, error) {
	if strings.TrimSpace(name) == "" {
		return Department{}, fmt.Errorf("%w: department name is required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	depts, err := r.load(ctx)
	if err != nil {
		return Department{}, err
	}
	d := Department{
		ID:          r.ids.NewID(),
		Name:        name,
		Description: description,
		Members:     []string{},
		CreatedAt:   NewTimestamp(r.now()),
	}
	if creatorID != "" {
		manager := creatorID
		d.ManagerID = &manager
	}
	depts = append(depts, d)
	if err := saveRecord(ctx, r.kv, DepartmentsKey, depts); err != nil {
		return Department{}, err
	}
	return d, nil
}

// All returns every department in creation order.
func (r *DepartmentRegistry) All(ctx context.Context) ([]Department, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Get looks a department up by id.
func (r *DepartmentRegistry) Get(ctx context.Context, id string) (Department, bool, error) {
	depts, err := r.All(ctx)
	if err != nil {
		return Department{}, false, err
	}
	for _, d := range depts {
		if d.ID == id {
			return d, true, nil
		}
	}
	return Department{}, false, nil
}

// ListVisible returns the departments user may see: all of them for an admin,
// otherwise those the user belongs to.
func (r *DepartmentRegistry) ListVisible(ctx context.Context, user *User) ([]Department, error) {
	depts, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Department, 0, len(depts))
	for _, d := range depts {
		if CanViewDepartment(user, d.ID) {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

func (r *DepartmentRegistry) load(ctx context.Context) ([]Department, error) {
	var depts []Department
	if _, err := loadRecord(ctx, r.kv, DepartmentsKey, &depts); err != nil {
		return nil, err
	}
	if depts == nil {
		depts = []Department{}
	}
	return depts, nil
}

// WithMembers fills each department's Members from the users' DepartmentIDs,
// which are the only place membership is recorded.
func WithMembers(depts []Department, users []User) []Department {
	out := make([]Department, len(depts))
	for i, d := range depts {
		d.Members = []string{}
		for _, u := range users {
			if u.InDepartment(d.ID) {
				d.Members = append(d.Members, u.ID)
			}
		}
		out[i] = d
	}
	return out
}
