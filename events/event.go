package events

import (
	"time"

	"github.com/google/uuid"

	"taskboard/domain"
)

// Type names a domain event.
type Type string

const (
	UserRegistered         Type = "user-registered"
	UserLoggedIn           Type = "user-logged-in"
	UserLoggedOut          Type = "user-logged-out"
	UserRoleUpdated        Type = "user-role-updated"
	UserDepartmentAssigned Type = "user-department-assigned"
	UserDepartmentRemoved  Type = "user-department-removed"
	DepartmentCreated      Type = "department-created"
	TaskCreated            Type = "task-created"
	TaskMoved              Type = "task-moved"
)

// Event is the envelope published for every state change.
type Event struct {
	ID         string           `json:"id"`
	Type       Type             `json:"type"`
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId"`
	UserID     string           `json:"userId,omitempty"`
	Data       map[string]any   `json:"data,omitempty"`
	Time       domain.Timestamp `json:"time"`
}

// New builds an event with a fresh id stamped with the current time.
func New(typ Type, entityType, entityID, userID string, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Data:       data,
		Time:       domain.NewTimestamp(time.Now()),
	}
}
